package user

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDeactivated    = errors.New("user account is deactivated")
)

// RegisterInput is the sign-up form
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ProfileUpdate holds the editable account and profile fields
type ProfileUpdate struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Phone              string `json:"phone"`
	DocumentType       string `json:"document_type"`
	DocumentNumber     string `json:"document_number"`
	Address            string `json:"address"`
	City               string `json:"city"`
	Region             string `json:"region"`
	PostalCode         string `json:"postal_code"`
	Country            string `json:"country"`
	Newsletter         bool   `json:"newsletter"`
	EmailNotifications bool   `json:"email_notifications"`
}

// Service handles account and profile operations
type Service struct {
	store      store.Store
	bcryptCost int

	// Accounts backs the admin users screens
	Accounts *crud.Service[model.Account]
}

// NewService creates a user service hashing with the default bcrypt cost
func NewService(s store.Store) *Service {
	return NewServiceWithCost(s, auth.DefaultBcryptCost)
}

// NewServiceWithCost lets tests trade hash strength for speed
func NewServiceWithCost(s store.Store, cost int) *Service {
	return &Service{
		store:      s,
		bcryptCost: cost,
		Accounts:   crud.NewService(s.Accounts(), ValidateAccount),
	}
}

// Register creates a customer account
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Account, *model.Profile, error) {
	return s.RegisterWithRole(ctx, in, model.RoleCustomer)
}

// RegisterWithRole creates the account and its empty profile in one
// transaction and returns both
func (s *Service) RegisterWithRole(ctx context.Context, in RegisterInput, role string) (*model.Account, *model.Profile, error) {
	account := &model.Account{
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      role,
		IsActive:  true,
	}

	v := crud.NewValidationError()
	if err := ValidateAccount(account); err != nil {
		var verr *crud.ValidationError
		if !errors.As(err, &verr) {
			return nil, nil, err
		}
		v = verr
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		v.Add("password", err.Error())
	}
	if err := v.Err(); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPasswordWithCost(in.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}
	account.PasswordHash = hash

	profile := &model.Profile{EmailNotifications: true}
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}
		profile.AccountID = account.ID
		return tx.CreateProfile(ctx, profile)
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, nil, ErrEmailTaken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register account: %w", err)
	}

	log.Printf("[User] Registered account %s (%s)", account.ID, account.Role)
	return account, profile, nil
}

// Authenticate checks credentials and returns the active account
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := s.store.GetAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if !auth.CheckPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, ErrUserDeactivated
	}
	return account, nil
}

// Get returns an account by id
func (s *Service) Get(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.store.Accounts().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetProfile returns the account's profile. Accounts created before
// profiles existed get an empty one on first read.
func (s *Service) GetProfile(ctx context.Context, accountID string) (*model.Profile, error) {
	profile, err := s.store.GetProfile(ctx, accountID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile = &model.Profile{AccountID: accountID, EmailNotifications: true}
	err = s.store.CreateProfile(ctx, profile)
	switch {
	case errors.Is(err, store.ErrReferenced):
		return nil, ErrUserNotFound
	case errors.Is(err, store.ErrConflict):
		return s.store.GetProfile(ctx, accountID)
	case err != nil:
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile saves names on the account and the rest on the profile
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in ProfileUpdate) (*model.Account, *model.Profile, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	if _, err := s.GetProfile(ctx, accountID); err != nil {
		return nil, nil, err
	}

	var (
		account *model.Account
		profile *model.Profile
	)
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		a, err := tx.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}
		a.FirstName = strings.TrimSpace(in.FirstName)
		a.LastName = strings.TrimSpace(in.LastName)
		if err := tx.Accounts().Update(ctx, a); err != nil {
			return err
		}

		p, err := tx.GetProfile(ctx, accountID)
		if err != nil {
			return err
		}
		p.Phone = strings.TrimSpace(in.Phone)
		p.DocumentType = strings.TrimSpace(in.DocumentType)
		p.DocumentNumber = strings.TrimSpace(in.DocumentNumber)
		p.Address = strings.TrimSpace(in.Address)
		p.City = strings.TrimSpace(in.City)
		p.Region = strings.TrimSpace(in.Region)
		p.PostalCode = strings.TrimSpace(in.PostalCode)
		p.Country = strings.TrimSpace(in.Country)
		p.Newsletter = in.Newsletter
		p.EmailNotifications = in.EmailNotifications
		if err := tx.UpdateProfile(ctx, p); err != nil {
			return err
		}
		account, profile = a, p
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrUserNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return account, profile, nil
}

func (in ProfileUpdate) validate() error {
	v := crud.NewValidationError()
	maxLen(v, "first_name", in.FirstName, 150)
	maxLen(v, "last_name", in.LastName, 150)
	maxLen(v, "phone", in.Phone, 20)
	maxLen(v, "document_number", in.DocumentNumber, 50)
	maxLen(v, "address", in.Address, 255)
	maxLen(v, "city", in.City, 100)
	maxLen(v, "region", in.Region, 100)
	maxLen(v, "postal_code", in.PostalCode, 10)
	maxLen(v, "country", in.Country, 100)
	return v.Err()
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, account.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := auth.ValidatePassword(next); err != nil {
		v := crud.NewValidationError()
		v.Add("new_password", err.Error())
		return v.Err()
	}

	hash, err := auth.HashPasswordWithCost(next, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	account.PasswordHash = hash
	if err := s.store.Accounts().Update(ctx, account); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	log.Printf("[User] Password changed for account %s", accountID)
	return nil
}

// SetPassword is used by the admin user form
func (s *Service) SetPassword(account *model.Account, password string) error {
	hash, err := auth.HashPasswordWithCost(password, s.bcryptCost)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	return nil
}

// ValidateAccount normalizes and checks an account before it is saved
func ValidateAccount(a *model.Account) error {
	v := crud.NewValidationError()

	a.Email = normalizeEmail(a.Email)
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	if a.Role == "" {
		a.Role = model.RoleCustomer
	}

	switch {
	case a.Email == "":
		v.Add("email", "email is required")
	case len(a.Email) > 254:
		v.Add("email", "email is too long")
	default:
		if addr, err := mail.ParseAddress(a.Email); err != nil || addr.Address != a.Email {
			v.Add("email", "enter a valid email address")
		}
	}
	maxLen(v, "first_name", a.FirstName, 150)
	maxLen(v, "last_name", a.LastName, 150)
	switch a.Role {
	case model.RoleCustomer, model.RoleStaff, model.RoleAdmin:
	default:
		v.Add("role", "role must be customer, staff or admin")
	}
	return v.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func maxLen(v *crud.ValidationError, field, value string, max int) {
	if len(strings.TrimSpace(value)) > max {
		v.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}
