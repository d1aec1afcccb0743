package revoke

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordVersion1 = 1

// ErrStoreUnavailable is an exported constant or variable used by the security core.
var ErrStoreUnavailable = errors.New("revocation store unavailable")

// consumeScript deletes a record and reports whether it existed. DEL is the
// serialization point of refresh rotation: under concurrent redemption of the
// same token exactly one caller observes existed==1.
const consumeScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var consumeLua = redis.NewScript(consumeScript)

// Record marks one outstanding refresh session. Its presence in the store is
// necessary (not sufficient on its own) for the matching refresh token to be
// honored.
type Record struct {
	UserID    string
	SessionID string
	IssuedAt  int64
}

// Store defines a public type used by authsec APIs.
//
// Store instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	indexPrefix string
}

// NewStore creates a revocation [Store] backed by the given Redis client.
// prefix and indexPrefix set the key namespaces for records and the per-user
// session index.
func NewStore(redisClient redis.UniversalClient, prefix, indexPrefix string) *Store {
	if prefix == "" {
		prefix = "refresh"
	}
	if indexPrefix == "" {
		indexPrefix = "refreshidx"
	}
	return &Store{
		redis:       redisClient,
		prefix:      prefix,
		indexPrefix: indexPrefix,
	}
}

func (s *Store) key(userID, sessionID string) string {
	return s.prefix + ":" + userID + ":" + sessionID
}

func (s *Store) indexKey(userID string) string {
	return s.indexPrefix + ":" + userID
}

// Save persists a [Record] with the given TTL and adds the session to the
// user's index set. The index TTL is refreshed to the record TTL so it never
// outlives the newest record it tracks.
//
//	Performance: 3 Redis commands in one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, rec Record, ttl time.Duration) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.UserID, rec.SessionID), data, ttl)
		pipe.SAdd(ctx, s.indexKey(rec.UserID), rec.SessionID)
		pipe.Expire(ctx, s.indexKey(rec.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Exists reports whether a record is still present. Read-only.
func (s *Store) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(userID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Get retrieves and decodes a record. Returns redis.Nil when absent.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(userID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRecord(data)
}

// Consume atomically deletes a record and reports whether it existed. Only a
// caller that observes existed==true may mint replacement tokens; a no-op
// delete means another redemption already won (or the record expired) and the
// token must be treated as revoked.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Consume(ctx context.Context, userID, sessionID string) (bool, error) {
	existed, err := consumeLua.Run(
		ctx,
		s.redis,
		[]string{s.key(userID, sessionID), s.indexKey(userID)},
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return existed > 0, nil
}

// DeleteAllForUser removes every revocation record tracked for the user and
// returns how many were deleted.
//
// ATOMICITY NOTE: this operation is NOT fully atomic. It reads the user's
// index set (SMEMBERS) and then deletes the records (MULTI/EXEC DEL). A record
// written between the read and the delete is not captured, and a partition
// mid-way may leave some sessions live. Callers must treat bulk revocation as
// best-effort and follow up with verification when responding to compromise.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	indexKey := s.indexKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		keys = append(keys, s.key(userID, sessionID))
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			delCmd = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if delCmd == nil {
		return 0, nil
	}
	return int(delCmd.Val()), nil
}

// ActiveSessionIDs returns the session IDs tracked for a user. Entries whose
// record already expired may linger in the index until consumed or bulk
// revoked; callers needing exactness should confirm with Exists.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time store availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func encodeRecord(rec Record) ([]byte, error) {
	if len(rec.UserID) > 65535 || len(rec.SessionID) > 65535 {
		return nil, errors.New("revocation record id length exceeded")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, rec.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.UserID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.SessionID))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.SessionID)

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersion1 {
		return nil, errors.New("invalid revocation record version")
	}

	rec := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &rec.IssuedAt); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	rec.UserID = string(user)

	var sessionLen uint16
	if err := binary.Read(reader, binary.BigEndian, &sessionLen); err != nil {
		return nil, err
	}
	session := make([]byte, sessionLen)
	if _, err := io.ReadFull(reader, session); err != nil {
		return nil, err
	}
	rec.SessionID = string(session)

	return rec, nil
}
