package validation

type StoreCheck int

const (
	NoStoreCheck StoreCheck = iota
	// Unique requires the value to be absent from the record store.
	Unique
	// Exists requires the value to be present in the record store.
	Exists
)

// Rule binds a field path to a validator tag and an optional store check.
// Paths may address every element of a collection with "*", e.g. "items.*.name".
type Rule struct {
	Field string
	Tag   string
	Store StoreCheck
}

// RuleSet is an ordered list of rules. Treat values as immutable and build new
// sets with Union.
type RuleSet []Rule

// Union concatenates sets in order. A rule repeated verbatim in a later set is dropped.
func Union(sets ...RuleSet) RuleSet {
	seen := make(map[Rule]struct{})
	var out RuleSet
	for _, s := range sets {
		for _, r := range s {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// Fields lists the distinct field paths of the set in order.
func (s RuleSet) Fields() []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, r := range s {
		if _, ok := seen[r.Field]; ok {
			continue
		}
		seen[r.Field] = struct{}{}
		out = append(out, r.Field)
	}
	return out
}

var (
	PayRules = RuleSet{
		{Field: "amount", Tag: "required,numeric,gt=0"},
		{Field: "notes", Tag: "omitempty,max=500"},
		{Field: "transaction_code", Tag: "required,max=100", Store: Unique},
		// order_id/order_table link the payment to any business entity
		{Field: "order_id", Tag: "required,numeric"},
		{Field: "order_table", Tag: "required,string"},
	}

	VerifyRules = RuleSet{
		{Field: "amount", Tag: "required,numeric"},
		{Field: "transaction_code", Tag: "required", Store: Exists},
		{Field: "status", Tag: "required,string"},
	}

	FawryItemRules = RuleSet{
		{Field: "items", Tag: "required,min=1"},
		{Field: "items.*.id", Tag: "required,numeric"},
		{Field: "items.*.unit_price", Tag: "required,numeric"},
		{Field: "items.*.quantity", Tag: "required,numeric"},
	}

	NamedItemRules = RuleSet{
		{Field: "items", Tag: "required,min=1"},
		{Field: "items.*.name", Tag: "required,string"},
		{Field: "items.*.unit_price", Tag: "required,numeric"},
		{Field: "items.*.quantity", Tag: "required,numeric"},
	}

	OpayItemRules = RuleSet{
		{Field: "items", Tag: "required,min=1"},
		{Field: "items.*.unit_price", Tag: "required,numeric"},
		{Field: "items.*.id", Tag: "required"},
		{Field: "items.*.quantity", Tag: "required,numeric"},
	}

	SourceRules = RuleSet{
		{Field: "source", Tag: "required"},
	}

	CardSourceRules = RuleSet{
		{Field: "source", Tag: "required,oneof=CREDIT MADA APPLE"},
	}
)
