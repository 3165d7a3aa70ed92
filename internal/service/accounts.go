package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
	"github.com/kjstillabower/irrigation-advisor/internal/store"
	"github.com/kjstillabower/irrigation-advisor/internal/validation"
)

// DefaultBcryptCost matches the cost used for existing password hashes.
const DefaultBcryptCost = 10

// DefaultLanguage is assigned when no supported language matches.
const DefaultLanguage = "en"

// SupportedLanguages are the UI languages, in matcher preference order.
var SupportedLanguages = []string{"en", "hi", "kn", "te", "ml", "ta"}

var languageMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(SupportedLanguages))
	for i, code := range SupportedLanguages {
		tags[i] = language.MustParse(code)
	}
	return language.NewMatcher(tags)
}()

// NormalizeLanguage maps a language preference ("kn", "kn-IN", "hi;q=0.8,en") to one
// of SupportedLanguages, falling back to DefaultLanguage.
func NormalizeLanguage(pref string) string {
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return DefaultLanguage
	}
	tags, _, err := language.ParseAcceptLanguage(pref)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return DefaultLanguage
	}
	return SupportedLanguages[idx]
}

// RegisterRequest carries new-account fields. Language and Location are optional.
type RegisterRequest struct {
	Username string
	Password string
	Language string
	Location string
}

// AccountService registers and authenticates users.
type AccountService struct {
	store store.AccountStore
	cost  int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAccountService(s store.AccountStore, bcryptCost int) *AccountService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = DefaultBcryptCost
	}
	return &AccountService{store: s, cost: bcryptCost}
}

// Register validates, hashes and stores a new account.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (models.Account, error) {
	username, err := validation.ValidateUsername(req.Username)
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return models.Account{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	acct, err := s.store.CreateAccount(ctx, models.Account{
		Username:     username,
		PasswordHash: string(hash),
		Language:     NormalizeLanguage(req.Language),
		Location:     strings.TrimSpace(req.Location),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return models.Account{}, ErrUserExists
		}
		observability.StoreErrorsTotal.WithLabelValues("create_account").Inc()
		return models.Account{}, fmt.Errorf("%w: create account: %w", ErrPersistence, err)
	}
	observability.LoggerFromContext(ctx).Info("account registered",
		zap.String("user_id", acct.ID),
		zap.String("language", acct.Language))
	return acct, nil
}

// Login returns the account when the password matches. Unknown users and wrong
// passwords both yield ErrInvalidCredentials and take comparable time.
func (s *AccountService) Login(ctx context.Context, username, password string) (models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.Account{}, ErrInvalidCredentials
	}

	acct, err := s.store.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return models.Account{}, ErrInvalidCredentials
		}
		observability.StoreErrorsTotal.WithLabelValues("account_by_username").Inc()
		return models.Account{}, fmt.Errorf("%w: find account: %w", ErrPersistence, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

func (s *AccountService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("irrigation-advisor"), s.cost)
	})
	return s.dummyHash
}
