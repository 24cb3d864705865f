// Package memory is an in-process credential store. Transactions are
// serialized and roll back by restoring a snapshot, so it suits tests and
// single-instance development runs.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"marketplace/internal/domain/entity"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Store holds identities and refresh sessions.
type Store struct {
	mu         sync.Mutex
	identities map[int64]*entity.Identity
	byEmail    map[string]int64
	tokens     map[string]*entity.RefreshToken
	nextID     int64
	now        func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		identities: make(map[int64]*entity.Identity),
		byEmail:    make(map[string]int64),
		tokens:     make(map[string]*entity.RefreshToken),
		now:        time.Now,
	}
}

// SetClock overrides the store's notion of now for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Identities returns a repository that is not bound to a transaction.
func (s *Store) Identities() repository.IdentityRepository {
	return &identityRepo{s: s}
}

// RefreshTokens returns a repository that is not bound to a transaction.
func (s *Store) RefreshTokens() repository.RefreshTokenRepository {
	return &refreshTokenRepo{s: s}
}

// Execute holds the store lock for the whole of fn and restores the previous
// state if fn fails or panics.
func (s *Store) Execute(_ context.Context, fn func(repository.RepositoryFactory) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
	}()

	if err = fn(&txFactory{s: s}); err != nil {
		s.restore(snap)
	}

	return err
}

type txFactory struct {
	s *Store
}

func (f *txFactory) IdentityRepo() repository.IdentityRepository {
	return &identityRepo{s: f.s, inTx: true}
}

func (f *txFactory) RefreshTokenRepo() repository.RefreshTokenRepository {
	return &refreshTokenRepo{s: f.s, inTx: true}
}

type snapshot struct {
	identities map[int64]*entity.Identity
	byEmail    map[string]int64
	tokens     map[string]*entity.RefreshToken
	nextID     int64
}

func (s *Store) snapshot() snapshot {
	ids := make(map[int64]*entity.Identity, len(s.identities))
	for id, ident := range s.identities {
		ids[id] = cloneIdentity(ident)
	}
	tokens := make(map[string]*entity.RefreshToken, len(s.tokens))
	for h, tok := range s.tokens {
		cp := *tok
		tokens[h] = &cp
	}

	return snapshot{
		identities: ids,
		byEmail:    maps.Clone(s.byEmail),
		tokens:     tokens,
		nextID:     s.nextID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.identities = snap.identities
	s.byEmail = snap.byEmail
	s.tokens = snap.tokens
	s.nextID = snap.nextID
}

// locked runs fn under the store lock unless the caller already holds it
// through Execute.
func (s *Store) locked(inTx bool, fn func() error) error {
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	return fn()
}

type identityRepo struct {
	s    *Store
	inTx bool
}

func (r *identityRepo) FindByID(_ context.Context, id int64) (*entity.Identity, error) {
	var out *entity.Identity
	err := r.s.locked(r.inTx, func() error {
		ident, ok := r.s.identities[id]
		if !ok {
			return repository.ErrIdentityNotFound
		}
		out = cloneIdentity(ident)

		return nil
	})

	return out, err
}

func (r *identityRepo) FindByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	var id int64
	err := r.s.locked(r.inTx, func() error {
		found, ok := r.s.byEmail[email]
		if !ok {
			return repository.ErrIdentityNotFound
		}
		id = found

		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.FindByID(ctx, id)
}

func (r *identityRepo) FindByIDForUpdate(ctx context.Context, id int64) (*entity.Identity, error) {
	return r.FindByID(ctx, id)
}

func (r *identityRepo) FindByEmailForUpdate(ctx context.Context, email string) (*entity.Identity, error) {
	return r.FindByEmail(ctx, email)
}

func (r *identityRepo) Create(_ context.Context, identity *entity.Identity) error {
	return r.s.locked(r.inTx, func() error {
		if _, exists := r.s.byEmail[identity.Email]; exists {
			return domainerrors.ErrDuplicateEmail.WrapMessage("email already exists")
		}

		r.s.nextID++
		now := r.s.now()
		identity.ID = r.s.nextID
		identity.CreatedAt = now
		identity.UpdatedAt = now

		r.s.identities[identity.ID] = cloneIdentity(identity)
		r.s.byEmail[identity.Email] = identity.ID

		return nil
	})
}

func (r *identityRepo) UpdateFields(_ context.Context, id int64, fields repository.Fields) error {
	return r.s.locked(r.inTx, func() error {
		ident, ok := r.s.identities[id]
		if !ok {
			return repository.ErrIdentityNotFound
		}

		updated := cloneIdentity(ident)
		for col, v := range fields {
			if err := applyField(updated, col, v); err != nil {
				return err
			}
		}
		updated.UpdatedAt = r.s.now()
		r.s.identities[id] = updated

		return nil
	})
}

func (r *identityRepo) MergeDocument(_ context.Context, id int64, field entity.DocumentField, patch entity.Document) error {
	return r.s.locked(r.inTx, func() error {
		ident, ok := r.s.identities[id]
		if !ok {
			return repository.ErrIdentityNotFound
		}

		present := patch.Present()
		if len(present) == 0 {
			return nil
		}

		updated := cloneIdentity(ident)
		updated.Profile.SetDocument(field, updated.Profile.Document(field).Merge(present))
		updated.UpdatedAt = r.s.now()
		r.s.identities[id] = updated

		return nil
	})
}

func (r *identityRepo) ClearExpiredOTPs(_ context.Context, now time.Time) (int64, error) {
	var cleared int64
	err := r.s.locked(r.inTx, func() error {
		for _, ident := range r.s.identities {
			if ident.OTPExpiresAt == nil || !ident.OTPExpired(now) {
				continue
			}
			ident.ClearOTP()
			cleared++
		}

		return nil
	})

	return cleared, err
}

type refreshTokenRepo struct {
	s    *Store
	inTx bool
}

func (r *refreshTokenRepo) Create(_ context.Context, token *entity.RefreshToken) error {
	return r.s.locked(r.inTx, func() error {
		if _, exists := r.s.tokens[token.TokenHash]; exists {
			return domainerrors.ErrRefreshTokenInvalid.WrapMessage("refresh token already exists")
		}
		if token.ID == "" {
			token.ID = uuid.NewString()
		}
		token.CreatedAt = r.s.now()

		cp := *token
		r.s.tokens[token.TokenHash] = &cp

		return nil
	})
}

func (r *refreshTokenRepo) FindByHash(_ context.Context, tokenHash string) (*entity.RefreshToken, error) {
	var out *entity.RefreshToken
	err := r.s.locked(r.inTx, func() error {
		tok, ok := r.s.tokens[tokenHash]
		if !ok {
			return repository.ErrRefreshTokenNotFound
		}
		if tok.ExpiresAt.Before(r.s.now()) {
			return repository.ErrRefreshTokenExpired
		}
		cp := *tok
		out = &cp

		return nil
	})

	return out, err
}

func (r *refreshTokenRepo) DeleteByHash(_ context.Context, tokenHash string) error {
	return r.s.locked(r.inTx, func() error {
		delete(r.s.tokens, tokenHash)

		return nil
	})
}

func (r *refreshTokenRepo) DeleteByUserID(_ context.Context, userID int64) error {
	return r.s.locked(r.inTx, func() error {
		maps.DeleteFunc(r.s.tokens, func(_ string, tok *entity.RefreshToken) bool {
			return tok.UserID == userID
		})

		return nil
	})
}

func (r *refreshTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.s.locked(r.inTx, func() error {
		maps.DeleteFunc(r.s.tokens, func(_ string, tok *entity.RefreshToken) bool {
			if tok.ExpiresAt.Before(now) {
				removed++

				return true
			}

			return false
		})

		return nil
	})

	return removed, err
}

func applyField(ident *entity.Identity, col repository.Column, v any) error {
	switch col {
	case repository.ColName:
		return assignString(&ident.Name, col, v)
	case repository.ColPasswordHash:
		return assignString(&ident.PasswordHash, col, v)
	case repository.ColContactNumber:
		return assignString(&ident.ContactNumber, col, v)
	case repository.ColFirstName:
		return assignString(&ident.Profile.FirstName, col, v)
	case repository.ColMiddleName:
		return assignString(&ident.Profile.MiddleName, col, v)
	case repository.ColLastName:
		return assignString(&ident.Profile.LastName, col, v)
	case repository.ColDesignation:
		return assignString(&ident.Profile.Designation, col, v)
	case repository.ColVisitingCard:
		return assignString(&ident.Profile.VisitingCard, col, v)
	case repository.ColDigitalSignature:
		return assignString(&ident.Profile.DigitalSignature, col, v)
	case repository.ColProfileImage:
		return assignString(&ident.Profile.ProfileImage, col, v)
	case repository.ColEmailVerified:
		return assignBool(&ident.EmailVerified, col, v)
	case repository.ColMobileVerified:
		return assignBool(&ident.MobileVerified, col, v)
	case repository.ColEmailOTP:
		return assignStringPtr(&ident.EmailOTP, col, v)
	case repository.ColMobileOTP:
		return assignStringPtr(&ident.MobileOTP, col, v)
	case repository.ColResetToken:
		return assignStringPtr(&ident.ResetToken, col, v)
	case repository.ColOTPExpiresAt:
		return assignTimePtr(&ident.OTPExpiresAt, col, v)
	case repository.ColResetExpiresAt:
		return assignTimePtr(&ident.ResetExpiresAt, col, v)
	default:
		return errors.Errorf("unknown column %q", col)
	}
}

func assignString(dst *string, col repository.Column, v any) error {
	s, ok := v.(string)
	if !ok {
		return errors.Errorf("column %q expects string, got %T", col, v)
	}
	*dst = s

	return nil
}

func assignBool(dst *bool, col repository.Column, v any) error {
	b, ok := v.(bool)
	if !ok {
		return errors.Errorf("column %q expects bool, got %T", col, v)
	}
	*dst = b

	return nil
}

func assignStringPtr(dst **string, col repository.Column, v any) error {
	switch val := v.(type) {
	case nil:
		*dst = nil
	case *string:
		if val == nil {
			*dst = nil
		} else {
			cp := *val
			*dst = &cp
		}
	case string:
		*dst = &val
	default:
		return errors.Errorf("column %q expects *string, got %T", col, v)
	}

	return nil
}

func assignTimePtr(dst **time.Time, col repository.Column, v any) error {
	switch val := v.(type) {
	case nil:
		*dst = nil
	case *time.Time:
		if val == nil {
			*dst = nil
		} else {
			cp := *val
			*dst = &cp
		}
	case time.Time:
		*dst = &val
	default:
		return errors.Errorf("column %q expects *time.Time, got %T", col, v)
	}

	return nil
}

func cloneIdentity(in *entity.Identity) *entity.Identity {
	out := *in
	out.EmailOTP = cloneStr(in.EmailOTP)
	out.MobileOTP = cloneStr(in.MobileOTP)
	out.ResetToken = cloneStr(in.ResetToken)
	out.OTPExpiresAt = cloneTime(in.OTPExpiresAt)
	out.ResetExpiresAt = cloneTime(in.ResetExpiresAt)
	for _, f := range entity.DocumentFields {
		if doc := in.Profile.Document(f); doc != nil {
			out.Profile.SetDocument(f, maps.Clone(doc))
		}
	}

	return &out
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p

	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p

	return &v
}
