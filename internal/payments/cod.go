package payments

import (
	"context"

	"paygate/internal/validation"
)

// cashOnDelivery records the payment without any provider call. Verify marks it
// paid once the collector confirms the cash.
type cashOnDelivery struct {
	base
}

func (c *cashOnDelivery) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return c.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := c.begin(ctx, &req, validation.PayRules, ""); err != nil {
			return c.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Success(MessagePaid).withCode(req.TransactionCode)
	})
}

func (c *cashOnDelivery) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	code := req.Get("transaction_code")
	return c.guard(ctx, stageVerify, func() string { return code }, fields, func() Envelope {
		if err := c.validate(ctx, fields, validation.VerifyRules); err != nil {
			return c.fail(ctx, stageVerify, code, err, fields)
		}
		return c.paid(ctx, code, fields)
	})
}
