package namespaces

import (
	"fmt"

	"github.com/10gen/migration-auditor/internal/util"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/mo"
)

const whitelistSetting = "database whitelist"

// ParseWhitelist validates a database whitelist as given by the operator.
//
// nil means “no whitelist”, i.e., every non-excluded database. Otherwise
// the value must be a non-empty list of strings ([]string, or []any as
// YAML decodes it). Anything else is a ConfigurationError.
func ParseWhitelist(raw any) (mo.Option[mapset.Set[string]], error) {
	var names []string

	switch v := raw.(type) {
	case nil:
		return mo.None[mapset.Set[string]](), nil

	case []string:
		if v == nil {
			return mo.None[mapset.Set[string]](), nil
		}
		names = v

	case []any:
		if v == nil {
			return mo.None[mapset.Set[string]](), nil
		}

		for i, el := range v {
			name, ok := el.(string)
			if !ok {
				return mo.None[mapset.Set[string]](), util.ConfigurationError{
					Setting: whitelistSetting,
					Reason:  fmt.Sprintf("member %d (%v) is a %T, not a database name", i, el, el),
				}
			}

			names = append(names, name)
		}

	default:
		return mo.None[mapset.Set[string]](), util.ConfigurationError{
			Setting: whitelistSetting,
			Reason: fmt.Sprintf(
				"should be a list, or absent if no whitelist is required (got %T)",
				raw,
			),
		}
	}

	if len(names) == 0 {
		return mo.None[mapset.Set[string]](), util.ConfigurationError{
			Setting: whitelistSetting,
			Reason:  "is empty but should list at least one database; omit it to verify all databases",
		}
	}

	return mo.Some(mapset.NewSet(names...)), nil
}
