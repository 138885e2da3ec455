// Package permissions defines the CustShop capability bitmask and the role unions built from it.
package permissions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Permission is a set of capabilities, one bit per capability.
type Permission uint32

// Individual capabilities. Bit positions are persisted in role rows and issued in
// tokens, so existing values must never be renumbered.
const (
	ViewProducts Permission = 1 << iota
	EditProducts
	ViewDesigns
	CreateDesigns
	PublishDesigns
	ModerateDesigns
	ManageCart
	ViewOrders
	ManageOrders
	ViewUsers
	EditUsers
	ManageRoles
	ManageTags
)

// None grants nothing.
const None Permission = 0

// Role unions.
const (
	UserPermissions      = ViewProducts | ViewDesigns | CreateDesigns | ManageCart
	CreatorPermissions   = UserPermissions | PublishDesigns
	ModeratorPermissions = CreatorPermissions | ModerateDesigns | ViewUsers | ViewOrders | ManageTags
	AdminPermissions     = ModeratorPermissions | EditProducts | ManageOrders | EditUsers | ManageRoles
)

// ErrMalformed is returned by Parse when a claim value is not a valid mask.
var ErrMalformed = errors.New("permissions: malformed value")

// ErrUnknownName is returned by FromNames for names outside the defined set.
var ErrUnknownName = errors.New("permissions: unknown name")

type definition struct {
	perm Permission
	name string
}

var definitions = []definition{
	{ViewProducts, "ViewProducts"},
	{EditProducts, "EditProducts"},
	{ViewDesigns, "ViewDesigns"},
	{CreateDesigns, "CreateDesigns"},
	{PublishDesigns, "PublishDesigns"},
	{ModerateDesigns, "ModerateDesigns"},
	{ManageCart, "ManageCart"},
	{ViewOrders, "ViewOrders"},
	{ManageOrders, "ManageOrders"},
	{ViewUsers, "ViewUsers"},
	{EditUsers, "EditUsers"},
	{ManageRoles, "ManageRoles"},
	{ManageTags, "ManageTags"},
}

var defined = func() Permission {
	var all Permission
	for _, d := range definitions {
		all |= d.perm
	}
	return all
}()

// Definition describes a single capability for listings.
type Definition struct {
	Name string `json:"name"`
	Bit  int    `json:"bit"`
	Mask uint32 `json:"mask"`
}

// All returns every defined capability in bit order.
func All() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, Definition{Name: d.name, Bit: bits.TrailingZeros32(uint32(d.perm)), Mask: uint32(d.perm)})
	}
	return out
}

// Defined returns the union of every defined capability.
func Defined() Permission {
	return defined
}

// Union ORs the given permissions together.
func Union(perms ...Permission) Permission {
	var out Permission
	for _, p := range perms {
		out |= p
	}
	return out
}

// Has reports whether p holds every bit of required.
func (p Permission) Has(required Permission) bool {
	return p&required == required
}

// HasAny reports whether p shares at least one bit with required.
// An empty requirement is always satisfied.
func (p Permission) HasAny(required Permission) bool {
	if required == None {
		return true
	}
	return p&required != 0
}

// Valid reports whether p carries only defined bits.
func (p Permission) Valid() bool {
	return p&^defined == 0
}

// Names lists the names of the defined bits set in p, in bit order.
func (p Permission) Names() []string {
	names := make([]string, 0, bits.OnesCount32(uint32(p)))
	for _, d := range definitions {
		if p&d.perm != 0 {
			names = append(names, d.name)
		}
	}
	return names
}

func (p Permission) String() string {
	if p == None {
		return "None"
	}
	names := p.Names()
	if rest := p &^ defined; rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// FormatClaim renders p as the decimal string carried in the Permissions claim.
func FormatClaim(p Permission) string {
	return strconv.FormatUint(uint64(p), 10)
}

// Parse reads a decimal claim value. Signs, whitespace, empty strings and values wider
// than 32 bits are rejected with ErrMalformed.
func Parse(raw string) (Permission, error) {
	if raw == "" || raw[0] == '+' || raw[0] == '-' {
		return None, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return None, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	return Permission(v), nil
}

// FromNames builds a mask from capability names. Matching is case-insensitive.
func FromNames(names []string) (Permission, error) {
	var out Permission
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		found := false
		for _, d := range definitions {
			if strings.EqualFold(d.name, name) {
				out |= d.perm
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("%w: %s", ErrUnknownName, name)
		}
	}
	return out, nil
}

// MarshalJSON encodes p as a list of names.
func (p Permission) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Names())
}

// UnmarshalJSON accepts either a list of names or a numeric mask.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		v, err := FromNames(names)
		if err != nil {
			return err
		}
		*p = v
		return nil
	}
	var mask uint32
	if err := json.Unmarshal(data, &mask); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, string(data))
	}
	*p = Permission(mask)
	return nil
}
