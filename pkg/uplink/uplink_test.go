package uplink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifisim/wifisim-go/pkg/wpacrypto"
)

type keyMap map[string]wpacrypto.SessionKey

func (m keyMap) SessionKey(id string) (wpacrypto.SessionKey, bool) {
	k, ok := m[id]
	return k, ok
}

func testKey(t *testing.T) wpacrypto.SessionKey {
	t.Helper()
	anonce, err := wpacrypto.NewNonce()
	require.NoError(t, err)
	snonce, err := wpacrypto.NewNonce()
	require.NoError(t, err)
	return wpacrypto.DeriveSessionKey("correcthorsebattery", anonce, snonce, "Device1", "AP1")
}

func TestSealBeforeKey(t *testing.T) {
	s := NewSealer("Device1", SealerConfig{})
	_, err := s.Seal([]byte("hello"), "")
	assert.ErrorIs(t, err, ErrNoSessionKey)
	assert.Equal(t, uint64(0), s.Seq())
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	fixed := time.UnixMilli(1700000000123)

	s := NewSealer("Device1", SealerConfig{Now: func() time.Time { return fixed }})
	s.Reset(key)

	frame, err := s.Seal([]byte("hello"), "Device2")
	require.NoError(t, err)
	assert.Equal(t, "Device1", frame.From)
	assert.Equal(t, "Device1", frame.AAD)
	assert.Equal(t, "Device2", frame.TargetID)
	assert.Equal(t, uint64(1), frame.Seq)
	assert.Equal(t, int64(1700000000123), frame.Ts)
	assert.Equal(t, string(wpacrypto.SuiteAES256GCM), frame.Alg)
	assert.Empty(t, frame.DemoKeyHex)

	o := NewOpener(keyMap{"Device1": key}, OpenerConfig{})
	msg, err := o.Open(frame)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg.Plaintext))
	assert.Equal(t, "Device2", msg.TargetID)
	assert.Equal(t, uint64(1), msg.Seq)
	assert.False(t, msg.Demo)
}

func TestSealSequence(t *testing.T) {
	s := NewSealer("Device1", SealerConfig{})
	s.Reset(testKey(t))

	for want := uint64(1); want <= 3; want++ {
		frame, err := s.Seal([]byte("x"), "")
		require.NoError(t, err)
		assert.Equal(t, want, frame.Seq)
	}

	// A new key restarts the counter.
	s.Reset(testKey(t))
	frame, err := s.Seal([]byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Seq)
}

func TestSealAfterClear(t *testing.T) {
	s := NewSealer("Device1", SealerConfig{})
	s.Reset(testKey(t))
	require.True(t, s.Active())

	s.Clear()
	assert.False(t, s.Active())
	_, err := s.Seal([]byte("x"), "")
	assert.ErrorIs(t, err, ErrNoSessionKey)
}

func TestOpenWithoutSession(t *testing.T) {
	key := testKey(t)
	s := NewSealer("Device1", SealerConfig{})
	s.Reset(key)
	frame, err := s.Seal([]byte("hello"), "")
	require.NoError(t, err)

	o := NewOpener(keyMap{}, OpenerConfig{})
	_, err = o.Open(frame)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestOpenRejectsTampering(t *testing.T) {
	key := testKey(t)
	s := NewSealer("Device1", SealerConfig{})
	s.Reset(key)

	tests := []struct {
		name   string
		mutate func(from, aad, ct, tag *string)
		keys   keyMap
		want   error
	}{
		{
			name:   "wrong key",
			mutate: func(_, _, _, _ *string) {},
			keys:   keyMap{"Device1": testKey(t)},
			want:   wpacrypto.ErrAuthentication,
		},
		{
			name: "flipped ciphertext",
			mutate: func(_, _, ct, _ *string) {
				b := []byte(*ct)
				if b[0] == '0' {
					b[0] = '1'
				} else {
					b[0] = '0'
				}
				*ct = string(b)
			},
			keys: keyMap{"Device1": key},
			want: wpacrypto.ErrAuthentication,
		},
		{
			name:   "truncated tag",
			mutate: func(_, _, _, tag *string) { *tag = (*tag)[:8] },
			keys:   keyMap{"Device1": key},
			want:   wpacrypto.ErrFormat,
		},
		{
			name:   "aad names someone else",
			mutate: func(_, aad, _, _ *string) { *aad = "Device2" },
			keys:   keyMap{"Device1": key},
			want:   wpacrypto.ErrAuthentication,
		},
		{
			name:   "claimed sender differs from sealer",
			mutate: func(from, aad, _, _ *string) { *from, *aad = "Device2", "Device2" },
			keys:   keyMap{"Device1": key, "Device2": key},
			want:   wpacrypto.ErrAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := s.Seal([]byte("hello"), "")
			require.NoError(t, err)
			tt.mutate(&frame.From, &frame.AAD, &frame.Ciphertext, &frame.AuthTag)

			msg, err := NewOpener(tt.keys, OpenerConfig{}).Open(frame)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenSuiteMismatch(t *testing.T) {
	key := testKey(t)
	s := NewSealer("Device1", SealerConfig{Suite: wpacrypto.SuiteChaCha20Poly1305})
	s.Reset(key)
	frame, err := s.Seal([]byte("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, string(wpacrypto.SuiteChaCha20Poly1305), frame.Alg)

	_, err = NewOpener(keyMap{"Device1": key}, OpenerConfig{}).Open(frame)
	assert.ErrorIs(t, err, ErrSuiteMismatch)

	msg, err := NewOpener(keyMap{"Device1": key}, OpenerConfig{Suite: wpacrypto.SuiteChaCha20Poly1305}).Open(frame)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg.Plaintext))
}

func TestDemoMode(t *testing.T) {
	key := testKey(t)
	s := NewSealer("Device1", SealerConfig{Demo: true})

	_, err := s.Seal([]byte("hi"), "")
	assert.ErrorIs(t, err, ErrNoSessionKey, "demo mode still requires a session")

	s.Reset(key)
	frame, err := s.Seal([]byte("hi"), "")
	require.NoError(t, err)
	require.Len(t, frame.DemoKeyHex, 2*wpacrypto.KeySize)

	// The session key does not open a demo frame.
	_, err = wpacrypto.Decrypt(key[:], frame.IV, frame.Ciphertext, frame.AuthTag, frame.AAD)
	assert.ErrorIs(t, err, wpacrypto.ErrAuthentication)

	_, err = NewOpener(keyMap{"Device1": key}, OpenerConfig{}).Open(frame)
	assert.ErrorIs(t, err, ErrDemoDisabled)

	msg, err := NewOpener(keyMap{"Device1": key}, OpenerConfig{AllowDemo: true}).Open(frame)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(msg.Plaintext))
	assert.True(t, msg.Demo)
}
