package builtin

import (
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"valsync/internal/core"
)

// Validator names contributed by the plugin.
const (
	NonEmpty = "non-empty"
	URL      = "url"
	Positive = "positive"
	OneOf    = "one-of-options"
)

// Plugin ships the stock prop validators.
type Plugin struct{}

// New constructs a builtin plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "builtin" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register contributes the stock validators.
func (Plugin) Register(registry *core.PluginRegistry) error {
	for name, v := range map[string]core.Validator{
		NonEmpty: nonEmpty,
		URL:      validURL,
		Positive: positive,
		OneOf:    oneOf,
	} {
		if err := registry.RegisterValidator(name, v); err != nil {
			return err
		}
	}
	return nil
}

func nonEmpty(in core.ValidationInput) string {
	if in.Value == nil {
		return "value is required"
	}
	rv := reflect.ValueOf(in.Value)
	switch rv.Kind() {
	case reflect.String:
		if strings.TrimSpace(rv.String()) == "" {
			return "value must not be blank"
		}
	case reflect.Slice, reflect.Map, reflect.Array:
		if rv.Len() == 0 {
			return "value must not be empty"
		}
	}
	return ""
}

func validURL(in core.ValidationInput) string {
	if in.Value == nil {
		return ""
	}
	raw, ok := in.Value.(string)
	if !ok {
		return fmt.Sprintf("expected a URL string, got %T", in.Value)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Sprintf("%q is not an absolute URL", raw)
	}
	return ""
}

func positive(in core.ValidationInput) string {
	if in.Value == nil {
		return ""
	}
	rv := reflect.ValueOf(in.Value)
	var ok bool
	switch {
	case rv.CanInt():
		ok = rv.Int() > 0
	case rv.CanUint():
		ok = rv.Uint() > 0
	case rv.CanFloat():
		ok = rv.Float() > 0
	default:
		return fmt.Sprintf("expected a number, got %T", in.Value)
	}
	if !ok {
		return fmt.Sprintf("%v is not positive", in.Value)
	}
	return ""
}

func oneOf(in core.ValidationInput) string {
	if in.Value == nil {
		return ""
	}
	s := fmt.Sprint(in.Value)
	if slices.Contains(in.Options, s) {
		return ""
	}
	return fmt.Sprintf("%q is not one of %s", s, strings.Join(in.Options, ", "))
}
