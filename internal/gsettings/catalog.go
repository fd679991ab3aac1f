// Package gsettings reads and watches desktop settings through the
// gsettings command line tool.
package gsettings

import (
	"fmt"
	"slices"
)

// Desktop schemas watched besides the PQ schema.
const (
	SchemaColor    = "org.gnome.settings-daemon.plugins.color"
	SchemaPrivacy  = "org.gnome.desktop.privacy"
	SchemaLocation = "org.gnome.system.location"

	DefaultPQSchema = "io.furios.pq"
)

// Key binds an alias used inside the daemon to a schema key.
type Key struct {
	Alias  string
	Schema string
	Name   string
}

func (k Key) String() string { return k.Schema + " " + k.Name }

// Catalog is the set of keys the daemon reads and watches.
type Catalog struct {
	keys    []Key
	byAlias map[string]Key
	byName  map[string]Key
}

// NewCatalog builds a catalog; aliases and schema/name pairs must be unique.
func NewCatalog(keys ...Key) (*Catalog, error) {
	c := &Catalog{
		byAlias: make(map[string]Key, len(keys)),
		byName:  make(map[string]Key, len(keys)),
	}
	for _, k := range keys {
		if k.Alias == "" || k.Schema == "" || k.Name == "" {
			return nil, fmt.Errorf("gsettings: incomplete key %+v", k)
		}
		if _, dup := c.byAlias[k.Alias]; dup {
			return nil, fmt.Errorf("gsettings: duplicate alias %s", k.Alias)
		}
		if _, dup := c.byName[k.String()]; dup {
			return nil, fmt.Errorf("gsettings: duplicate key %s", k)
		}
		c.keys = append(c.keys, k)
		c.byAlias[k.Alias] = k
		c.byName[k.String()] = k
	}
	return c, nil
}

// DefaultCatalog covers night light, privacy, location and the PQ schema
// keys given in pqKeys.
func DefaultCatalog(pqSchema string, pqKeys []string) *Catalog {
	if pqSchema == "" {
		pqSchema = DefaultPQSchema
	}
	keys := []Key{
		{Alias: "night-light-enabled", Schema: SchemaColor, Name: "night-light-enabled"},
		{Alias: "night-light-temperature", Schema: SchemaColor, Name: "night-light-temperature"},
		{Alias: "disable-camera", Schema: SchemaPrivacy, Name: "disable-camera"},
		{Alias: "disable-microphone", Schema: SchemaPrivacy, Name: "disable-microphone"},
		{Alias: "disable-sound-output", Schema: SchemaPrivacy, Name: "disable-sound-output"},
		{Alias: "location-enabled", Schema: SchemaLocation, Name: "enabled"},
	}
	for _, k := range pqKeys {
		keys = append(keys, Key{Alias: k, Schema: pqSchema, Name: k})
	}
	c, err := NewCatalog(keys...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(alias string) (Key, bool) {
	k, ok := c.byAlias[alias]
	return k, ok
}

// Resolve maps a schema key back to its catalog entry.
func (c *Catalog) Resolve(schema, name string) (Key, bool) {
	k, ok := c.byName[schema+" "+name]
	return k, ok
}

func (c *Catalog) Keys() []Key { return slices.Clone(c.keys) }

// Schemas lists each schema once, in first-seen order.
func (c *Catalog) Schemas() []string {
	var out []string
	for _, k := range c.keys {
		if !slices.Contains(out, k.Schema) {
			out = append(out, k.Schema)
		}
	}
	return out
}

// Only returns a catalog restricted to the given schemas.
func (c *Catalog) Only(schemas ...string) *Catalog {
	var keys []Key
	for _, k := range c.keys {
		if slices.Contains(schemas, k.Schema) {
			keys = append(keys, k)
		}
	}
	out, _ := NewCatalog(keys...)
	return out
}
