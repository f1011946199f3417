// Package service contains the account workflow and the api key authorization check.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/crypto"
	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/mail"
	"github.com/and161185/keygate/internal/model"
	"github.com/and161185/keygate/internal/repository"
)

// Field limits, matching the column widths in migrations/00001_init.sql.
const (
	MaxEmailLen    = 200
	MaxPasswordLen = 64
	MaxAPIKeyLen   = 32
)

var emailRe = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// AccountService defines the registration, login and verification workflow.
type AccountService interface {
	// Register creates an unverified account bound to an active activation token
	// and mails a verification code.
	Register(ctx context.Context, email, password, apiKey string) error
	// Login authenticates by password and returns the bound api key.
	Login(ctx context.Context, email, password string) (model.LoginResult, error)
	// VerifyEmail consumes the pending verification code.
	VerifyEmail(ctx context.Context, email, code string) error
	// ResendCode re-authenticates and issues a new code unless the last one is too recent.
	ResendCode(ctx context.Context, email, password string) (model.ResendResult, error)
	// ChangeAPIKey rebinds the account to newKey.
	ChangeAPIKey(ctx context.Context, email, newKey string) error
	// ChangePassword replaces the password after checking the old one.
	ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error
}

// PasswordHasher hashes and verifies passwords. Implemented by *crypto.Hasher.
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, encoded []byte) bool
}

// Mailer delivers verification messages. Implemented by *mail.Dispatcher.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) bool
	SendAsync(to, subject, body string)
}

// Options tunes code lifetimes.
type Options struct {
	CodeTTL        time.Duration
	ResendInterval time.Duration
}

// DefaultOptions: codes live one hour and may be re-sent every five minutes.
var DefaultOptions = Options{
	CodeTTL:        time.Hour,
	ResendInterval: 5 * time.Minute,
}

type AccountServiceImpl struct {
	store  repository.Store
	hasher PasswordHasher
	mailer Mailer
	opts   Options
	log    *zap.Logger

	now     func() time.Time
	genCode func() (string, error)

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAccountService constructs AccountService with required dependencies.
func NewAccountService(store repository.Store, hasher PasswordHasher, mailer Mailer, opts Options, log *zap.Logger) *AccountServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = DefaultOptions.CodeTTL
	}
	if opts.ResendInterval <= 0 {
		opts.ResendInterval = DefaultOptions.ResendInterval
	}
	return &AccountServiceImpl{
		store:   store,
		hasher:  hasher,
		mailer:  mailer,
		opts:    opts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		genCode: crypto.GenerateCode,
	}
}

func (s *AccountServiceImpl) newCode() (model.VerificationCode, error) {
	code, err := s.genCode()
	if err != nil {
		return model.VerificationCode{}, fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	return model.VerificationCode{Code: code, CreatedAt: now, ExpiresAt: now.Add(s.opts.CodeTTL)}, nil
}

// Register creates the account inside one transaction and mails the code after commit.
func (s *AccountServiceImpl) Register(ctx context.Context, email, password, apiKey string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	if err := validateAPIKey(apiKey); err != nil {
		return err
	}

	var vc model.VerificationCode
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, err := tx.Tokens().GetActive(ctx, apiKey); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrInvalidOrInactiveToken
			}
			return err
		}

		if _, err := tx.Accounts().GetByEmail(ctx, email); err == nil {
			return errs.ErrEmailExists
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		var err error
		if vc, err = s.newCode(); err != nil {
			return err
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		// The schema's unique constraints catch concurrent registrations that
		// passed the lookups above.
		return tx.Accounts().Create(ctx, &model.Account{
			Email:            email,
			PasswordHash:     hash,
			APIKey:           apiKey,
			EmailVerified:    false,
			VerificationCode: &vc.Code,
			CodeExpiry:       &vc.ExpiresAt,
			CodeCreated:      &vc.CreatedAt,
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("account registered", zap.String("email", email))
	subject, body := mail.VerificationMessage(vc.Code)
	s.mailer.SendAsync(email, subject, body)
	return nil
}

// Login does not distinguish an unknown email from a wrong password.
func (s *AccountServiceImpl) Login(ctx context.Context, email, password string) (model.LoginResult, error) {
	var res model.LoginResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		a, err := tx.Accounts().GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				s.burnVerify(password)
				return errs.ErrInvalidCredentials
			}
			return err
		}
		if !s.hasher.Verify(password, a.PasswordHash) {
			return errs.ErrInvalidCredentials
		}
		res = model.LoginResult{APIKey: a.APIKey, Activated: a.EmailVerified}
		return nil
	})
	return res, err
}

// burnVerify spends one hash verification so a missing account costs the same as a wrong password.
func (s *AccountServiceImpl) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("keygate-dummy-password")
	})
	_ = s.hasher.Verify(password, s.dummyHash)
}

// VerifyEmail marks the account verified if code matches and has not expired.
func (s *AccountServiceImpl) VerifyEmail(ctx context.Context, email, code string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		a, err := tx.Accounts().GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrInvalidEmail
			}
			return err
		}
		if !a.HasPendingCode() || *a.VerificationCode != code {
			return errs.ErrInvalidCode
		}
		if a.CodeExpiry != nil && s.now().After(*a.CodeExpiry) {
			return errs.ErrCodeExpired
		}
		if err := tx.Accounts().SetVerified(ctx, email); err != nil {
			return err
		}
		s.log.Info("email verified", zap.String("email", email))
		return nil
	})
}

// ResendCode issues a fresh code after re-authentication. A request within
// ResendInterval of the previous code is answered with Sent=false.
func (s *AccountServiceImpl) ResendCode(ctx context.Context, email, password string) (model.ResendResult, error) {
	var (
		res model.ResendResult
		vc  model.VerificationCode
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		a, err := tx.Accounts().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !s.hasher.Verify(password, a.PasswordHash) {
			return errs.ErrInvalidCredentials
		}
		// A verified account must not get a live code again.
		if a.EmailVerified {
			res.AlreadyVerified = true
			return nil
		}
		if a.CodeCreated != nil && s.now().Sub(*a.CodeCreated) < s.opts.ResendInterval {
			return nil
		}

		if vc, err = s.newCode(); err != nil {
			return err
		}
		if err := tx.Accounts().SetVerificationCode(ctx, email, vc.Code, vc.ExpiresAt, vc.CreatedAt); err != nil {
			return err
		}
		res.Sent = true
		return nil
	})
	if err != nil || !res.Sent {
		return res, err
	}

	subject, body := mail.VerificationMessage(vc.Code)
	s.mailer.Send(ctx, email, subject, body)
	return res, nil
}

// ChangeAPIKey rebinds the account. Rebinding to the current key is a no-op.
func (s *AccountServiceImpl) ChangeAPIKey(ctx context.Context, email, newKey string) error {
	if err := validateAPIKey(newKey); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		a, err := tx.Accounts().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if a.APIKey == newKey {
			return nil
		}

		other, err := tx.Accounts().GetByAPIKey(ctx, newKey)
		switch {
		case err == nil && other.Email != email:
			return errs.ErrKeyInUse
		case err != nil && !errors.Is(err, errs.ErrNotFound):
			return err
		}

		if err := tx.Accounts().SetAPIKey(ctx, email, newKey); err != nil {
			return err
		}
		s.log.Info("api key changed", zap.String("email", email))
		return nil
	})
}

// ChangePassword verifies the account and oldPassword before validating and storing newPassword.
func (s *AccountServiceImpl) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		a, err := tx.Accounts().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !s.hasher.Verify(oldPassword, a.PasswordHash) {
			return errs.ErrInvalidOldPassword
		}
		if err := validatePassword(newPassword); err != nil {
			return err
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		if err := tx.Accounts().SetPasswordHash(ctx, email, hash); err != nil {
			return err
		}
		s.log.Info("password changed", zap.String("email", email))
		return nil
	})
}

func validateEmail(email string) error {
	if utf8.RuneCountInString(email) > MaxEmailLen || !emailRe.MatchString(email) {
		return fmt.Errorf("%w: email", errs.ErrInvalidInput)
	}
	return nil
}

func validatePassword(pw string) error {
	if pw == "" || utf8.RuneCountInString(pw) > MaxPasswordLen {
		return fmt.Errorf("%w: password must be 1..%d characters", errs.ErrInvalidInput, MaxPasswordLen)
	}
	return nil
}

func validateAPIKey(key string) error {
	if key == "" || utf8.RuneCountInString(key) > MaxAPIKeyLen {
		return fmt.Errorf("%w: api key must be 1..%d characters", errs.ErrInvalidInput, MaxAPIKeyLen)
	}
	return nil
}
