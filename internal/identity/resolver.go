package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	expirable "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// ErrHandleNotFound is returned when a handle does not resolve to any account.
var ErrHandleNotFound = errors.New("handle not found")

// ErrDIDNotFound is returned when a DID document cannot be located.
var ErrDIDNotFound = errors.New("did not found")

const handleCacheSize = 10_000

// Config holds resolver settings.
type Config struct {
	// PLCHost is the PLC directory base URL used for did:plc documents.
	PLCHost string
	// HandleResolverHost is an XRPC host used for handle-to-DID resolution.
	HandleResolverHost string
	// CacheTTL bounds the staleness of memoized DID-to-handle mappings.
	CacheTTL time.Duration
	// LookupTimeout caps each individual remote lookup. Past it the entry
	// degrades to unresolved instead of holding up the caller.
	LookupTimeout time.Duration
}

// Resolver maps decentralized identifiers to their current handles and
// service endpoints. Handle lookups are memoized with a TTL and deduplicated
// across concurrent requests. Safe for concurrent use.
type Resolver struct {
	http    *resty.Client
	cfg     Config
	handles *expirable.LRU[string, string]
	group   singleflight.Group
	log     *slog.Logger
}

// NewResolver creates a Resolver with the given configuration.
func NewResolver(cfg Config, log *slog.Logger) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	return &Resolver{
		http:    resty.New().SetTimeout(cfg.LookupTimeout),
		cfg:     cfg,
		handles: expirable.NewLRU[string, string](handleCacheSize, nil, cfg.CacheTTL),
		log:     log.With("component", "identity_resolver"),
	}
}

// ResolveHandles resolves a batch of DIDs to their current handles. DIDs that
// cannot be resolved (deleted account, timeout, malformed identifier) are
// absent from the returned map; an individual failure never fails the batch.
// Duplicate inputs collapse to a single lookup.
func (r *Resolver) ResolveHandles(ctx context.Context, dids []string) map[string]string {
	unique := make(map[string]struct{}, len(dids))
	for _, did := range dids {
		if did != "" {
			unique[did] = struct{}{}
		}
	}

	out := make(map[string]string, len(unique))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for did := range unique {
		wg.Add(1)
		go func(did string) {
			defer wg.Done()
			handle, err := r.ResolveHandle(ctx, did)
			if err != nil {
				r.log.Warn("handle resolution degraded", "did", did, "error", err)
				return
			}
			mu.Lock()
			out[did] = handle
			mu.Unlock()
		}(did)
	}
	wg.Wait()

	return out
}

// ResolveHandle resolves a single DID to its current handle, serving from the
// TTL cache when possible.
func (r *Resolver) ResolveHandle(ctx context.Context, did string) (string, error) {
	if handle, ok := r.handles.Get(did); ok {
		return handle, nil
	}

	v, err, _ := r.group.Do(did, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
		defer cancel()

		doc, err := r.resolveDocument(lookupCtx, did)
		if err != nil {
			return "", err
		}
		handle := doc.handle()
		if handle == "" {
			return "", fmt.Errorf("no handle in document for %s", did)
		}
		r.handles.Add(did, handle)
		return handle, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ResolveHandleToDID resolves a handle to its DID via the configured XRPC host.
func (r *Resolver) ResolveHandleToDID(ctx context.Context, handle string) (string, error) {
	var body struct {
		DID string `json:"did"`
	}

	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParam("handle", handle).
		SetResult(&body).
		Get(r.cfg.HandleResolverHost + "/xrpc/com.atproto.identity.resolveHandle")
	if err != nil {
		return "", fmt.Errorf("resolving handle %q: %w", handle, err)
	}
	if resp.StatusCode() == http.StatusBadRequest {
		return "", ErrHandleNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("resolving handle %q: status %d", handle, resp.StatusCode())
	}
	if body.DID == "" {
		return "", ErrHandleNotFound
	}
	return body.DID, nil
}

// PDSEndpoint resolves a DID to the base URL of its personal data server.
func (r *Resolver) PDSEndpoint(ctx context.Context, did string) (string, error) {
	doc, err := r.resolveDocument(ctx, did)
	if err != nil {
		return "", err
	}
	for _, svc := range doc.Service {
		if svc.Type == "AtprotoPersonalDataServer" || strings.HasSuffix(svc.ID, "#atproto_pds") {
			return strings.TrimSuffix(svc.ServiceEndpoint, "/"), nil
		}
	}
	return "", fmt.Errorf("no PDS endpoint in document for %s", did)
}

type didService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

type didDocument struct {
	ID          string       `json:"id"`
	AlsoKnownAs []string     `json:"alsoKnownAs"`
	Service     []didService `json:"service"`
}

// handle extracts the current handle from the document's alsoKnownAs entries.
func (d *didDocument) handle() string {
	for _, aka := range d.AlsoKnownAs {
		if strings.HasPrefix(aka, "at://") {
			return strings.TrimPrefix(aka, "at://")
		}
	}
	return ""
}

// resolveDocument fetches the DID document for a did:plc or did:web identifier.
func (r *Resolver) resolveDocument(ctx context.Context, did string) (*didDocument, error) {
	var docURL string
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		docURL = r.cfg.PLCHost + "/" + did
	case strings.HasPrefix(did, "did:web:"):
		docURL = "https://" + strings.TrimPrefix(did, "did:web:") + "/.well-known/did.json"
	default:
		return nil, fmt.Errorf("unsupported DID method: %q", did)
	}

	var doc didDocument
	resp, err := r.http.R().
		SetContext(ctx).
		SetResult(&doc).
		Get(docURL)
	if err != nil {
		return nil, fmt.Errorf("fetching DID document for %s: %w", did, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrDIDNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetching DID document for %s: status %d", did, resp.StatusCode())
	}
	return &doc, nil
}
