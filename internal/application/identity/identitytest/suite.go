// Package identitytest checks MethodStore implementations against the
// recover/claim contract. Every backend runs the same suite.
package identitytest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-2fa-confirm/internal/application/identity"
	"github.com/go-2fa-confirm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store. newStore must return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) identity.MethodStore) {
	t.Run("RecoverLifecycle", func(t *testing.T) { recoverLifecycle(t, newStore(t)) })
	t.Run("RecoverLowercasesKey", func(t *testing.T) { recoverLowercasesKey(t, newStore(t)) })
	t.Run("ClaimMissing", func(t *testing.T) { claimMissing(t, newStore(t)) })
	t.Run("ClaimIdempotent", func(t *testing.T) { claimIdempotent(t, newStore(t)) })
	t.Run("ClaimRequiresCurrentCode", func(t *testing.T) { claimRequiresCurrentCode(t, newStore(t)) })
	t.Run("ConcurrentClaimAndRotate", func(t *testing.T) { concurrentClaimAndRotate(t, newStore(t)) })
	t.Run("UniqueKeyCollision", func(t *testing.T) { uniqueKeyCollision(t, newStore(t)) })
	t.Run("PhoneHasNoUniqueKey", func(t *testing.T) { phoneHasNoUniqueKey(t, newStore(t)) })
	t.Run("ConcurrentCollidingRecover", func(t *testing.T) { concurrentCollidingRecover(t, newStore(t)) })
	t.Run("ConcurrentSameKeyRecover", func(t *testing.T) { concurrentSameKeyRecover(t, newStore(t)) })
}

func recoverLifecycle(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()

	out, err := s.RecoverIdentity(ctx, "user@example.com", domain.MethodEmail, "482913")
	require.NoError(t, err)
	assert.Equal(t, domain.RecoverCreated, out)

	m, err := s.GetMethod(ctx, "user@example.com", domain.MethodEmail)
	require.NoError(t, err)
	assert.False(t, m.Claimed)
	require.NotNil(t, m.SecurityCode)
	assert.Equal(t, "482913", *m.SecurityCode)
	require.NotNil(t, m.UniqueIdentityKey)
	assert.Equal(t, "user@example.com", *m.UniqueIdentityKey)

	out, err = s.RecoverIdentity(ctx, "user@example.com", domain.MethodEmail, "019284")
	require.NoError(t, err)
	assert.Equal(t, domain.RecoverRotated, out)
	m, err = s.GetMethod(ctx, "user@example.com", domain.MethodEmail)
	require.NoError(t, err)
	require.NotNil(t, m.SecurityCode)
	assert.Equal(t, "019284", *m.SecurityCode)

	claimed, err := s.ClaimMethod(ctx, "user@example.com", domain.MethodEmail)
	require.NoError(t, err)
	assert.True(t, claimed.Claimed)
	assert.Nil(t, claimed.SecurityCode)

	out, err = s.RecoverIdentity(ctx, "user@example.com", domain.MethodEmail, "555555")
	require.NoError(t, err)
	assert.Equal(t, domain.RecoverAlreadyClaimed, out)
	assert.False(t, out.Succeeded())

	m, err = s.GetMethod(ctx, "user@example.com", domain.MethodEmail)
	require.NoError(t, err)
	assert.True(t, m.Claimed)
	assert.Nil(t, m.SecurityCode, "claimed record must not be mutated")
}

func recoverLowercasesKey(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	out, err := s.RecoverIdentity(ctx, "Mixed.Case@Example.com", domain.MethodEmail, "111111")
	require.NoError(t, err)
	assert.Equal(t, domain.RecoverCreated, out)

	_, err = s.GetMethod(ctx, "mixed.case@example.com", domain.MethodEmail)
	require.NoError(t, err)

	out, err = s.RecoverIdentity(ctx, "MIXED.CASE@EXAMPLE.COM", domain.MethodEmail, "222222")
	require.NoError(t, err)
	assert.Equal(t, domain.RecoverRotated, out)
}

func claimMissing(t *testing.T, s identity.MethodStore) {
	_, err := s.ClaimMethod(context.Background(), "nobody@example.com", domain.MethodEmail)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetMethod(context.Background(), "nobody@example.com", domain.MethodEmail)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func claimIdempotent(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	_, err := s.RecoverIdentity(ctx, "+15551234567", domain.MethodPhone, "123456")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		m, err := s.ClaimMethod(ctx, "+15551234567", domain.MethodPhone)
		require.NoError(t, err)
		assert.True(t, m.Claimed)
		assert.Nil(t, m.SecurityCode)
	}
}

func claimRequiresCurrentCode(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	_, err := s.RecoverIdentity(ctx, "user@example.com", domain.MethodEmail, "111111")
	require.NoError(t, err)
	_, err = s.RecoverIdentity(ctx, "user@example.com", domain.MethodEmail, "222222")
	require.NoError(t, err)

	for _, code := range []string{"111111", "000000"} {
		m, err := s.ClaimMethodWithCode(ctx, "user@example.com", domain.MethodEmail, code)
		assert.ErrorIs(t, err, domain.ErrCodeMismatch, "code %q", code)
		assert.Nil(t, m)
	}
	m, err := s.GetMethod(ctx, "user@example.com", domain.MethodEmail)
	require.NoError(t, err)
	assert.False(t, m.Claimed, "a rejected claim must leave the record unclaimed")
	require.NotNil(t, m.SecurityCode)
	assert.Equal(t, "222222", *m.SecurityCode)

	m, err = s.ClaimMethodWithCode(ctx, "user@example.com", domain.MethodEmail, "222222")
	require.NoError(t, err)
	assert.True(t, m.Claimed)
	assert.Nil(t, m.SecurityCode)

	// The code is gone once claimed; re-claiming succeeds with any code.
	for _, code := range []string{"222222", "000000"} {
		m, err = s.ClaimMethodWithCode(ctx, "user@example.com", domain.MethodEmail, code)
		require.NoError(t, err, "code %q", code)
		assert.True(t, m.Claimed)
	}

	_, err = s.ClaimMethodWithCode(ctx, "nobody@example.com", domain.MethodEmail, "222222")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// concurrentClaimAndRotate races a claim with the old code against a
// rotation. The claim may only win if it was checked against the code it
// consumed: after the rotation lands, the old code must never claim.
func concurrentClaimAndRotate(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	for round := 0; round < 10; round++ {
		key := fmt.Sprintf("+1555000%04d", round)
		_, err := s.RecoverIdentity(ctx, key, domain.MethodPhone, "111111")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var claimErr, rotateErr error
		var outcome domain.RecoverOutcome
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, claimErr = s.ClaimMethodWithCode(ctx, key, domain.MethodPhone, "111111")
		}()
		go func() {
			defer wg.Done()
			outcome, rotateErr = s.RecoverIdentity(ctx, key, domain.MethodPhone, "222222")
		}()
		wg.Wait()
		require.NoError(t, rotateErr)

		m, err := s.GetMethod(ctx, key, domain.MethodPhone)
		require.NoError(t, err)
		if claimErr == nil {
			assert.True(t, m.Claimed, "round %d", round)
			assert.Equal(t, domain.RecoverAlreadyClaimed, outcome, "round %d", round)
		} else {
			assert.ErrorIs(t, claimErr, domain.ErrCodeMismatch, "round %d", round)
			assert.False(t, m.Claimed, "round %d", round)
			assert.Equal(t, domain.RecoverRotated, outcome, "round %d", round)
		}
	}
}

func uniqueKeyCollision(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	out, err := s.RecoverIdentity(ctx, "first.last@gmail.com", domain.MethodEmail, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.RecoverCreated, out)

	out, err = s.RecoverIdentity(ctx, "firstlast+wallet@googlemail.com", domain.MethodEmail, "654321")
	require.NoError(t, err, "a uniqueness violation is an outcome, not an error")
	assert.Equal(t, domain.RecoverConflict, out)

	_, err = s.GetMethod(ctx, "firstlast+wallet@googlemail.com", domain.MethodEmail)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func phoneHasNoUniqueKey(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	for _, phone := range []string{"+15550000001", "+15550000002"} {
		out, err := s.RecoverIdentity(ctx, phone, domain.MethodPhone, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.RecoverCreated, out)
		m, err := s.GetMethod(ctx, phone, domain.MethodPhone)
		require.NoError(t, err)
		assert.Nil(t, m.UniqueIdentityKey)
	}
}

func concurrentCollidingRecover(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	for round := 0; round < 10; round++ {
		a := fmt.Sprintf("race.%d@gmail.com", round)
		b := fmt.Sprintf("race%d+x@gmail.com", round)

		var wg sync.WaitGroup
		outcomes := make([]domain.RecoverOutcome, 2)
		errs := make([]error, 2)
		for i, key := range []string{a, b} {
			wg.Add(1)
			go func(i int, key string) {
				defer wg.Done()
				outcomes[i], errs[i] = s.RecoverIdentity(ctx, key, domain.MethodEmail, "123456")
			}(i, key)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		wins := 0
		for _, o := range outcomes {
			if o.Succeeded() {
				wins++
			} else {
				assert.Equal(t, domain.RecoverConflict, o)
			}
		}
		assert.Equal(t, 1, wins, "round %d: %v", round, outcomes)
	}
}

func concurrentSameKeyRecover(t *testing.T, s identity.MethodStore) {
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]domain.RecoverOutcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = s.RecoverIdentity(ctx, "same@example.com", domain.MethodEmail, fmt.Sprintf("%06d", i))
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case domain.RecoverCreated:
			created++
		case domain.RecoverRotated, domain.RecoverConflict:
		default:
			t.Fatalf("unexpected outcome %q", outcomes[i])
		}
	}
	assert.LessOrEqual(t, created, 1)
	_, err := s.GetMethod(ctx, "same@example.com", domain.MethodEmail)
	require.NoError(t, err)
}
