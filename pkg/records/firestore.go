package records

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/uuid"

	"github.com/draftgo-dev/draftgo/pkg/session"
)

// FirestoreStore implements Store using Google Cloud Firestore.
// Records live in per-user subcollections:
//
//	<collection>/<userID>/records/<recordID>
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	mu         sync.RWMutex
	closed     bool
}

// FirestoreConfig contains configuration for the Firestore record store.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

// FirestoreOption configures a FirestoreStore.
type FirestoreOption func(*FirestoreConfig)

// WithProjectID sets the GCP project ID.
func WithProjectID(projectID string) FirestoreOption {
	return func(c *FirestoreConfig) {
		c.ProjectID = projectID
	}
}

// WithCredentialsFile sets the path to service account credentials.
// When unset, Application Default Credentials are used.
func WithCredentialsFile(path string) FirestoreOption {
	return func(c *FirestoreConfig) {
		c.CredentialsFile = path
	}
}

// WithCollection sets the top-level collection name (default: "expense_records").
func WithCollection(name string) FirestoreOption {
	return func(c *FirestoreConfig) {
		c.Collection = name
	}
}

// NewFirestoreStore creates a Firestore-backed record store.
func NewFirestoreStore(ctx context.Context, opts ...FirestoreOption) (*FirestoreStore, error) {
	config := &FirestoreConfig{}
	for _, opt := range opts {
		opt(config)
	}

	if config.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if config.Collection == "" {
		config.Collection = "expense_records"
	}

	var clientOpts []option.ClientOption
	if config.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, config.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     client,
		collection: config.Collection,
	}, nil
}

// recordDoc is the Firestore document shape.
type recordDoc struct {
	Vendor      string    `firestore:"vendor"`
	Total       int64     `firestore:"total"`
	Currency    string    `firestore:"currency"`
	PurchasedAt time.Time `firestore:"purchasedAt"`
	Category    string    `firestore:"category"`
	Notes       string    `firestore:"notes"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func toDoc(rec *session.Record) recordDoc {
	return recordDoc{
		Vendor:      rec.Vendor,
		Total:       rec.Total,
		Currency:    rec.Currency,
		PurchasedAt: rec.PurchasedAt,
		Category:    rec.Category,
		Notes:       rec.Notes,
		UpdatedAt:   time.Now().UTC(),
	}
}

func (d recordDoc) toRecord() *session.Record {
	return &session.Record{
		Vendor:      d.Vendor,
		Total:       d.Total,
		Currency:    d.Currency,
		PurchasedAt: d.PurchasedAt,
		Category:    d.Category,
		Notes:       d.Notes,
	}
}

func (s *FirestoreStore) userRecords(userID string) *firestore.CollectionRef {
	return s.client.Collection(s.collection).Doc(userID).Collection("records")
}

// Create stores a new record and returns its generated ID.
func (s *FirestoreStore) Create(ctx context.Context, userID string, rec *session.Record) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	id := uuid.New().String()
	if _, err := s.userRecords(userID).Doc(id).Create(ctx, toDoc(rec)); err != nil {
		return "", fmt.Errorf("firestore create: %w", err)
	}
	return id, nil
}

// Update replaces an existing record.
func (s *FirestoreStore) Update(ctx context.Context, userID, id string, rec *session.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	docRef := s.userRecords(userID).Doc(id)
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrRecordNotFound
		}
		return fmt.Errorf("firestore get: %w", err)
	}
	if _, err := docRef.Set(ctx, toDoc(rec)); err != nil {
		return fmt.Errorf("firestore set: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *FirestoreStore) Get(ctx context.Context, userID, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	snap, err := s.userRecords(userID).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("firestore get: %w", err)
	}

	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return doc.toRecord(), nil
}

// List returns all of a user's records.
func (s *FirestoreStore) List(ctx context.Context, userID string) (map[string]*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make(map[string]*session.Record)
	iter := s.userRecords(userID).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate records: %w", err)
		}

		var doc recordDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = doc.toRecord()
	}
	return out, nil
}

// Close closes the connection to Firestore.
func (s *FirestoreStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
