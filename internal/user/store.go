package user

import (
	"context"

	"github.com/louisbranch/objectstore/internal/storage"
)

// Store is the file store holding users, one YAML file per user.
type Store = storage.Store[User, *User]

// Load opens the user store rooted at dir.
func Load(ctx context.Context, dir string, opts ...storage.Option) (*Store, error) {
	return storage.Load[User](ctx, dir, opts...)
}
