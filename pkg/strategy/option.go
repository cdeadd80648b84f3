package strategy

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownOption is returned when parsing an option name that does not exist.
var ErrUnknownOption = errors.New("unknown strategy option")

// Option is a set of conditions under which a request strategy may issue
// requests. Flags are independent and combine with bitwise OR.
//
// The numeric values are part of the wire/config contract and must not change.
type Option uint32

const (
	// DoesNotAllowRequests is the empty set: no condition permits requests.
	DoesNotAllowRequests Option = 0

	// AllowsRequestsWhileUnauthenticated permits requests before login.
	AllowsRequestsWhileUnauthenticated Option = 1 << 0

	// AllowsRequestsWhileInBackground permits requests while the app is backgrounded.
	AllowsRequestsWhileInBackground Option = 1 << 1

	// AllowsRequestsDuringSlowSync permits requests during the full sync phase.
	AllowsRequestsDuringSlowSync Option = 1 << 2

	// AllowsRequestsDuringQuickSync permits requests during the incremental sync phase.
	AllowsRequestsDuringQuickSync Option = 1 << 3

	// AllowsRequestsWhileOnline permits requests once the client is in sync.
	AllowsRequestsWhileOnline Option = 1 << 4

	// AllowsRequestsDuringNotificationStreamFetch permits requests while
	// queued notification events are being fetched.
	AllowsRequestsDuringNotificationStreamFetch Option = 1 << 5

	// Known is the mask of all defined flags.
	Known = AllowsRequestsWhileUnauthenticated |
		AllowsRequestsWhileInBackground |
		AllowsRequestsDuringSlowSync |
		AllowsRequestsDuringQuickSync |
		AllowsRequestsWhileOnline |
		AllowsRequestsDuringNotificationStreamFetch
)

// optionNames lists canonical and short names, in bit order.
var optionNames = []struct {
	flag  Option
	name  string
	short string
}{
	{AllowsRequestsWhileUnauthenticated, "AllowsRequestsWhileUnauthenticated", "unauthenticated"},
	{AllowsRequestsWhileInBackground, "AllowsRequestsWhileInBackground", "background"},
	{AllowsRequestsDuringSlowSync, "AllowsRequestsDuringSlowSync", "slow-sync"},
	{AllowsRequestsDuringQuickSync, "AllowsRequestsDuringQuickSync", "quick-sync"},
	{AllowsRequestsWhileOnline, "AllowsRequestsWhileOnline", "online"},
	{AllowsRequestsDuringNotificationStreamFetch, "AllowsRequestsDuringNotificationStreamFetch", "notification-stream-fetch"},
}

// Has returns true if every flag in f is set in o.
func (o Option) Has(f Option) bool { return o&f == f }

// HasAny returns true if at least one flag in f is set in o.
func (o Option) HasAny(f Option) bool { return o&f != 0 }

// IsEmpty returns true if no flag is set.
func (o Option) IsEmpty() bool { return o == DoesNotAllowRequests }

// IsSubsetOf returns true if every flag of o is also set in other.
func (o Option) IsSubsetOf(other Option) bool { return o&^other == 0 }

// Valid returns true if o carries no undefined bits.
func (o Option) Valid() bool { return o&^Known == 0 }

// With returns o with the given flags added.
func (o Option) With(flags ...Option) Option {
	for _, f := range flags {
		o |= f
	}
	return o
}

// Without returns o with the given flags removed.
func (o Option) Without(flags ...Option) Option {
	for _, f := range flags {
		o &^= f
	}
	return o
}

// Flags decodes o into its single-bit flags in ascending bit order.
// Undefined bits are included as-is.
func (o Option) Flags() []Option {
	if o == 0 {
		return nil
	}
	flags := make([]Option, 0, bits.OnesCount32(uint32(o)))
	for rest := uint32(o); rest != 0; rest &= rest - 1 {
		flags = append(flags, Option(rest&-rest))
	}
	return flags
}

// String returns the flags joined with "|", or "none" for the empty set.
func (o Option) String() string {
	if o == 0 {
		return "none"
	}
	parts := make([]string, 0, bits.OnesCount32(uint32(o)))
	for _, f := range o.Flags() {
		parts = append(parts, f.shortName())
	}
	return strings.Join(parts, "|")
}

// Names returns the short names of all set flags.
func (o Option) Names() []string {
	names := make([]string, 0, bits.OnesCount32(uint32(o)))
	for _, f := range o.Flags() {
		names = append(names, f.shortName())
	}
	return names
}

func (o Option) shortName() string {
	for _, n := range optionNames {
		if n.flag == o {
			return n.short
		}
	}
	return fmt.Sprintf("0x%x", uint32(o))
}

// ParseOption parses flag names separated by "|" or ",". Both canonical
// names (AllowsRequestsWhileOnline) and short names (online) are accepted,
// case-insensitively. "none" and the empty string parse to DoesNotAllowRequests.
func ParseOption(s string) (Option, error) {
	var o Option
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ','
	})
	for _, field := range fields {
		f, err := parseFlag(strings.TrimSpace(field))
		if err != nil {
			return DoesNotAllowRequests, err
		}
		o |= f
	}
	return o, nil
}

func parseFlag(name string) (Option, error) {
	switch strings.ToLower(name) {
	case "", "none", "doesnotallowrequests":
		return DoesNotAllowRequests, nil
	}
	for _, n := range optionNames {
		if strings.EqualFold(name, n.name) || strings.EqualFold(name, n.short) {
			return n.flag, nil
		}
	}
	return DoesNotAllowRequests, fmt.Errorf("%w: %q", ErrUnknownOption, name)
}

// MarshalText implements encoding.TextMarshaler.
func (o Option) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Option) UnmarshalText(text []byte) error {
	parsed, err := ParseOption(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// MarshalYAML encodes the option as a list of short flag names.
func (o Option) MarshalYAML() (any, error) {
	return o.Names(), nil
}

// UnmarshalYAML accepts either a sequence of flag names or a single
// "|"-separated scalar.
func (o *Option) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return o.UnmarshalText([]byte(node.Value))
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		parsed, err := ParseOption(strings.Join(names, "|"))
		if err != nil {
			return err
		}
		*o = parsed
		return nil
	default:
		return fmt.Errorf("strategy option: unexpected YAML node kind %d at line %d", node.Kind, node.Line)
	}
}
