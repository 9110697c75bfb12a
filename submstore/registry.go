package submstore

import (
	"context"
	"fmt"
)

// OpenFunc constructs and verifies a backend from credentials.
type OpenFunc func(ctx context.Context, creds Credentials) (Store, error)

// Descriptor identifies one backend kind and the credentials it needs.
type Descriptor struct {
	Kind Kind
	// Required lists the configuration keys the backend reads.
	Required []string
	// Configured reports whether the credentials carry enough to attempt
	// Open. A nil Configured means always configured.
	Configured func(Credentials) bool
	Open       OpenFunc
}

func (d Descriptor) IsConfigured(creds Credentials) bool {
	return d.Configured == nil || d.Configured(creds)
}

// Registry maps backend kinds to their descriptors.
type Registry struct {
	descs map[Kind]Descriptor
}

func NewRegistry(descs ...Descriptor) *Registry {
	r := &Registry{descs: make(map[Kind]Descriptor, len(descs))}
	for _, d := range descs {
		r.descs[d.Kind] = d
	}
	return r
}

func (r *Registry) Lookup(k Kind) (Descriptor, bool) {
	d, ok := r.descs[k]
	return d, ok
}

// Open constructs the backend of the given kind.
func (r *Registry) Open(ctx context.Context, k Kind, creds Credentials) (Store, error) {
	d, ok := r.descs[k]
	if !ok {
		return nil, fmt.Errorf("storage backend %q is not registered", k)
	}
	return d.Open(ctx, creds)
}

// DefaultRegistry returns the production backends.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Descriptor{
			Kind:     KindSupabase,
			Required: []string{"SUPABASE_URL", "SUPABASE_ANON_KEY"},
			Configured: func(c Credentials) bool {
				return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
			},
			Open: OpenSupabaseStore,
		},
		Descriptor{
			Kind:     KindSheets,
			Required: []string{"GOOGLE_SHEETS_API_KEY", "GOOGLE_SHEET_ID", "GOOGLE_SHEET_RANGE"},
			Configured: func(c Credentials) bool {
				return (c.SheetsAPIKey != "" || c.SheetsCredentialsFile != "") && c.SheetID != ""
			},
			Open: func(ctx context.Context, creds Credentials) (Store, error) {
				return OpenSheetsStore(ctx, creds)
			},
		},
		Descriptor{
			Kind:     KindPostgres,
			Required: []string{"DATABASE_URL"},
			Configured: func(c Credentials) bool {
				return c.DatabaseURL != ""
			},
			Open: OpenPgStore,
		},
		Descriptor{
			Kind: KindMemory,
			Open: OpenMemStore,
		},
	)
}
