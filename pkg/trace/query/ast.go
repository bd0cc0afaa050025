package query

// Query is the root of a filter expression: one or more AND groups joined
// by "or".
type Query struct {
	Or []*AndExpr `@@ ( "or" @@ )*`
}

// AndExpr is a conjunction of unary terms.
type AndExpr struct {
	And []*Unary `@@ ( "and" @@ )*`
}

// Unary is a negation, a parenthesized group or a comparison.
type Unary struct {
	Not   *Unary      `  "not" @@`
	Group *Query      `| LParen @@ RParen`
	Cmp   *Comparison `| @@`
}

// Comparison tests one event field against a literal.
// Example: lock ~ "db"
type Comparison struct {
	Field string `@( "thread" | "lock" | "kind" )`
	Op    string `@( NotEq | Eq | Match )`
	Value string `@( String | Number | Ident )`
}
