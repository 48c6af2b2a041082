package validator

// allowedMethods lists the value methods routines may call. The flag marks
// methods that mutate their receiver.
var allowedMethods = map[string]bool{
	// str
	"upper":      false,
	"lower":      false,
	"strip":      false,
	"lstrip":     false,
	"rstrip":     false,
	"split":      false,
	"join":       false,
	"replace":    false,
	"startswith": false,
	"endswith":   false,
	"find":       false,
	"title":      false,
	"capitalize": false,
	"isdigit":    false,
	// list
	"append": true,
	"extend": true,
	"insert": true,
	"pop":    true,
	"remove": true,
	"clear":  true,
	"index":  false,
	"count":  false,
	"copy":   false,
	// dict
	"get":    false,
	"keys":   false,
	"values": false,
	"items":  false,
	"update": true,
}

// IsAllowedMethod reports whether name is callable as a value method.
func IsAllowedMethod(name string) bool {
	_, ok := allowedMethods[name]
	return ok
}

// IsMutatingMethod reports whether name mutates its receiver.
func IsMutatingMethod(name string) bool {
	return allowedMethods[name]
}

// AllowedMethods returns every allowed method name.
func AllowedMethods() []string {
	out := make([]string, 0, len(allowedMethods))
	for name := range allowedMethods {
		out = append(out, name)
	}
	return out
}
