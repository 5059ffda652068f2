// Package user provides the user record kept in the file store.
package user

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/louisbranch/objectstore/internal/auth/password"
	"github.com/louisbranch/objectstore/internal/mail"
	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
	"github.com/louisbranch/objectstore/internal/storage"
	"github.com/louisbranch/objectstore/internal/storage/codec"
)

const (
	minIDLength      = 6
	minNameLength    = 5
	minAddressLength = 11
	minEmailLength   = 6
	minPhoneLength   = 6

	resetSubject = "New password"
)

var (
	// ErrIDAlreadySet indicates an attempt to change an assigned id.
	ErrIDAlreadySet = apperrors.New(apperrors.CodeUserIDAlreadySet, "user id is already set and cannot be modified")
	// ErrIDTooShort indicates an id of 5 characters or fewer.
	ErrIDTooShort = apperrors.New(apperrors.CodeUserIDTooShort, "user id must be longer than 5 characters")
	// ErrNameTooShort indicates a name under 5 characters.
	ErrNameTooShort = apperrors.New(apperrors.CodeUserNameTooShort, "user name must be at least 5 characters")
	// ErrAddressTooShort indicates an address of 10 characters or fewer.
	ErrAddressTooShort = apperrors.New(apperrors.CodeUserAddressTooShort, "user address must be longer than 10 characters")
	// ErrEmailInvalid indicates an email without '@' and '.', or too short.
	ErrEmailInvalid = apperrors.New(apperrors.CodeUserEmailInvalid, "user email must contain @ and . and be longer than 5 characters")
	// ErrPhoneTooShort indicates a phone number of 5 characters or fewer.
	ErrPhoneTooShort = apperrors.New(apperrors.CodeUserPhoneTooShort, "user phone must be longer than 5 characters")
	// ErrContactMissing indicates a password reset for a user without name or email.
	ErrContactMissing = apperrors.New(apperrors.CodeUserContactMissing, "user name and email are required to reset the password")
	// ErrPasswordNotSet indicates a user without a password hash.
	ErrPasswordNotSet = apperrors.New(apperrors.CodeUserPasswordNotSet, "user has no password")
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

// PasswordGenerator returns a fresh random password.
type PasswordGenerator func() (string, error)

// User is a stored account. Fields are only changed through the validating
// setters.
type User struct {
	id           string
	name         string
	address      string
	email        string
	phone        string
	passwordHash string

	path string
}

// document is the on-disk form of a User.
type document struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Address      string `yaml:"address"`
	Email        string `yaml:"email"`
	Phone        string `yaml:"phone"`
	PasswordHash string `yaml:"password_hash"`
}

// New returns a user with the given id.
func New(id string) (*User, error) {
	u := &User{}
	if err := u.SetID(id); err != nil {
		return nil, err
	}
	return u, nil
}

// ID returns the lowercased user id, or "" when unset.
func (u *User) ID() string { return u.id }

// Name returns the display name.
func (u *User) Name() string { return u.name }

// Address returns the postal address.
func (u *User) Address() string { return u.address }

// Email returns the email address.
func (u *User) Email() string { return u.email }

// Phone returns the phone number.
func (u *User) Phone() string { return u.phone }

// HasPassword reports whether a password hash is set.
func (u *User) HasPassword() bool { return u.passwordHash != "" }

// SetID assigns the id once. It is stored lowercased.
func (u *User) SetID(id string) error {
	if u.id != "" {
		return ErrIDAlreadySet
	}
	if utf8.RuneCountInString(id) < minIDLength {
		return ErrIDTooShort
	}
	u.id = NormalizeID(id)
	return nil
}

// NormalizeID returns id in the lowercased form users are stored under.
func NormalizeID(id string) string {
	return cases.Lower(language.Und).String(id)
}

// SetName sets the display name.
func (u *User) SetName(name string) error {
	if utf8.RuneCountInString(name) < minNameLength {
		return ErrNameTooShort
	}
	u.name = name
	return nil
}

// SetAddress sets the postal address.
func (u *User) SetAddress(address string) error {
	if utf8.RuneCountInString(address) < minAddressLength {
		return ErrAddressTooShort
	}
	u.address = address
	return nil
}

// SetEmail sets the email address.
func (u *User) SetEmail(email string) error {
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") || utf8.RuneCountInString(email) < minEmailLength {
		return ErrEmailInvalid
	}
	u.email = email
	return nil
}

// SetPhone sets the phone number.
func (u *User) SetPhone(phone string) error {
	if utf8.RuneCountInString(phone) < minPhoneLength {
		return ErrPhoneTooShort
	}
	u.phone = phone
	return nil
}

// SetPassword checks plain against the strength policy and stores its hash.
func (u *User) SetPassword(hasher Hasher, plain string) error {
	if err := password.Validate(plain); err != nil {
		return err
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	u.passwordHash = hash
	return nil
}

// VerifyPassword reports whether plain matches the stored hash.
func (u *User) VerifyPassword(hasher Hasher, plain string) (bool, error) {
	if u.passwordHash == "" {
		return false, ErrPasswordNotSet
	}
	return hasher.Verify(plain, u.passwordHash)
}

// ResetPassword replaces the password with a generated one and mails it to
// the user. When the mail cannot be sent the new hash stays in place and a
// MAIL_SEND_FAILED error is returned; the record is not persisted either way.
// Callers that persist should use RegeneratePassword and SendPassword so the
// hash is saved before the mail leaves.
func (u *User) ResetPassword(ctx context.Context, generate PasswordGenerator, hasher Hasher, sender mail.Sender) error {
	plain, err := u.RegeneratePassword(generate, hasher)
	if err != nil {
		return err
	}
	return u.SendPassword(ctx, sender, plain)
}

// RegeneratePassword stores the hash of a freshly generated password and
// returns the plain text. A nil generate uses password.NewRandom.
func (u *User) RegeneratePassword(generate PasswordGenerator, hasher Hasher) (string, error) {
	if u.name == "" || u.email == "" {
		return "", ErrContactMissing
	}
	if generate == nil {
		generate = password.NewRandom
	}
	plain, err := generate()
	if err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	u.passwordHash = hash
	return plain, nil
}

// SendPassword mails plain to the user. Failures carry MAIL_SEND_FAILED.
func (u *User) SendPassword(ctx context.Context, sender mail.Sender, plain string) error {
	if u.name == "" || u.email == "" {
		return ErrContactMissing
	}
	err := sender.Send(ctx, mail.Message{
		To:      u.email,
		ToName:  u.name,
		Subject: resetSubject,
		Body:    fmt.Sprintf("Hi %s! Your new password: %s", u.name, plain),
	})
	if err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeMailSendFailed, "new password set but mail was not sent", map[string]string{"id": u.id}, err)
	}
	return nil
}

// StoragePath returns the directory the user file lives in.
func (u *User) StoragePath() string { return u.path }

// SetStoragePath records the directory the user file lives in.
func (u *User) SetStoragePath(path string) error {
	u.path = path
	return nil
}

// Persist writes the user to its file.
func (u *User) Persist() error {
	return storage.PersistRecord(u)
}

// Reload discards in-memory changes and re-reads the user file.
func (u *User) Reload() error {
	return storage.ReloadRecord[User](u)
}

// MarshalYAML implements yaml.Marshaler.
func (u User) MarshalYAML() (any, error) {
	return document{
		ID:           u.id,
		Name:         u.name,
		Address:      u.address,
		Email:        u.email,
		Phone:        u.phone,
		PasswordHash: u.passwordHash,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Unknown keys are rejected and
// every non-empty field must pass its setter, so a hand-edited file cannot
// hold a record the setters would refuse. The id is lowercased.
func (u *User) UnmarshalYAML(node *yaml.Node) error {
	var doc document
	if err := codec.DecodeNode(node, &doc); err != nil {
		return err
	}
	decoded := User{passwordHash: doc.PasswordHash, path: u.path}
	if doc.ID != "" {
		if err := decoded.SetID(doc.ID); err != nil {
			return err
		}
	}
	fields := []struct {
		value string
		set   func(string) error
	}{
		{doc.Name, decoded.SetName},
		{doc.Address, decoded.SetAddress},
		{doc.Email, decoded.SetEmail},
		{doc.Phone, decoded.SetPhone},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := f.set(f.value); err != nil {
			return err
		}
	}
	*u = decoded
	return nil
}

// FindByName returns the users whose name contains key, ignoring case.
func FindByName(users iter.Seq[*User], key string) []*User {
	fold := cases.Fold()
	needle := fold.String(key)
	var found []*User
	for u := range users {
		if u != nil && strings.Contains(fold.String(u.name), needle) {
			found = append(found, u)
		}
	}
	return found
}
