package reader

import (
	"context"
	"hash/fnv"
	"sync"
)

// PasswordPrompter is asked to confirm that the user knows the password
// whose hash is stored in a protected file. It may block, e.g. on a prompt.
type PasswordPrompter interface {
	ConfirmPassword(ctx context.Context, hash int32) (bool, error)
}

// PasswordFunc adapts a function to PasswordPrompter.
type PasswordFunc func(ctx context.Context, hash int32) (bool, error)

// ConfirmPassword calls f.
func (f PasswordFunc) ConfirmPassword(ctx context.Context, hash int32) (bool, error) {
	return f(ctx, hash)
}

// HashPassword returns the verification token a producer stores for password.
func HashPassword(password string) int32 {
	h := fnv.New32a()
	h.Write([]byte(password))
	return int32(h.Sum32())
}

// StaticPassword confirms a file when its stored hash matches password.
func StaticPassword(password string) PasswordPrompter {
	want := HashPassword(password)
	return PasswordFunc(func(_ context.Context, hash int32) (bool, error) {
		return hash == want, nil
	})
}

// PasswordCache remembers the last accepted hash so a refreshed file (or
// another file with the same password) opens without asking again. Share
// one cache between the opens that should skip the prompt.
type PasswordCache struct {
	mu       sync.Mutex
	accepted bool
	hash     int32
}

// Confirm returns true when hash was accepted before, otherwise asks p.
func (c *PasswordCache) Confirm(ctx context.Context, hash int32, p PasswordPrompter) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accepted && c.hash == hash {
		return true, nil
	}
	if p == nil {
		return false, nil
	}
	ok, err := p.ConfirmPassword(ctx, hash)
	if err != nil || !ok {
		return false, err
	}
	c.accepted = true
	c.hash = hash
	return true, nil
}
