package mdxparse

// Fixed suggestion catalogue referenced by parse_error diagnostics
// (SPEC_FULL.md supplement 5 / spec §7).
const (
	SuggestMissingFrom       = "add a FROM clause naming the cube, e.g. FROM [Cube Name]"
	SuggestUnbalancedBracket = "check for an unbalanced '{', '}', '(' or ')'"
	SuggestDuplicateAxis     = "each axis (ON COLUMNS, ON ROWS, ...) may appear only once"
	SuggestUnclosedString    = "close the string literal with a matching quote"
	SuggestUnexpectedToken   = "remove or replace the unexpected token"
	SuggestEmptySet          = "a set literal {} is valid but contributes no members"
	SuggestMissingOn         = "an axis_spec must end with ON <axis>, e.g. ON COLUMNS"
	SuggestMissingAs         = "MEMBER and SET definitions require AS before the expression"
)
