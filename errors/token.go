package errors

// Token is an error value published by the foreign module. Tokens are
// singletons per catalog and code, so identity comparison tells which foreign
// error occurred.
type Token struct {
	Name string
	Set  string
	Code uint64
}

func (t *Token) Error() string {
	if t.Set == "" {
		return "error." + t.Name
	}
	return t.Set + ".error." + t.Name
}

// Is makes every token match ErrErrorToken in addition to itself.
func (t *Token) Is(target error) bool {
	if e, ok := target.(*Error); ok {
		return e.Kind == KindErrorToken && e.Phase == ""
	}
	return false
}
