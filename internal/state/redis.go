package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// RedisStore keeps states in Redis. Keys are namespaced as
// "{prefix}:user:{id}:current" for the current state,
// "{prefix}:user:{id}:history" for the newest-first snapshot list and
// "{prefix}:state:{stateID}" for the state id to user index.
type RedisStore struct {
	client redis.UniversalClient
	opts   options
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps a go-redis client (Client, ClusterClient or Ring).
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.keyPrefix == "" {
		o.keyPrefix = "mood"
	}
	return &RedisStore{client: client, opts: o}
}

func (r *RedisStore) currentKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:current", r.opts.keyPrefix, userID)
}

func (r *RedisStore) historyKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:history", r.opts.keyPrefix, userID)
}

func (r *RedisStore) stateKey(stateID string) string {
	return fmt.Sprintf("%s:state:%s", r.opts.keyPrefix, stateID)
}

func (r *RedisStore) GetCurrent(ctx context.Context, userID string) (*mood.EmotionalState, error) {
	raw, err := r.client.Get(ctx, r.currentKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current %s: %w", userID, err)
	}
	st, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("get current %s: %w", userID, err)
	}
	return &st, nil
}

func (r *RedisStore) Save(ctx context.Context, st mood.EmotionalState) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	hk := r.historyKey(st.UserID)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.currentKey(st.UserID), b, 0)
		p.Set(ctx, r.stateKey(st.StateID), st.UserID, 0)
		p.LPush(ctx, hk, b)
		if r.opts.historyCap > 0 {
			p.LTrim(ctx, hk, 0, r.opts.historyCap-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", st.UserID, err)
	}
	return nil
}

func (r *RedisStore) Update(ctx context.Context, userID string, p Patch) (mood.EmotionalState, error) {
	return update(ctx, r, userID, p, r.opts.now())
}

func (r *RedisStore) History(ctx context.Context, userID string, days, limit int) ([]mood.EmotionalState, error) {
	snaps, err := r.snapshots(ctx, userID)
	if err != nil {
		return nil, err
	}
	return filterHistory(snaps, cutoff(r.opts.now(), days), limit, false), nil
}

func (r *RedisStore) ConflictHistory(ctx context.Context, userID string, days int) ([]mood.EmotionalState, error) {
	snaps, err := r.snapshots(ctx, userID)
	if err != nil {
		return nil, err
	}
	return filterHistory(snaps, cutoff(r.opts.now(), days), 0, true), nil
}

func (r *RedisStore) snapshots(ctx context.Context, userID string) ([]mood.EmotionalState, error) {
	items, err := r.client.LRange(ctx, r.historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", userID, err)
	}
	out := make([]mood.EmotionalState, 0, len(items))
	for _, raw := range items {
		st, err := decodeState(raw)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", userID, err)
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, stateID string) error {
	userID, err := r.client.Get(ctx, r.stateKey(stateID)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete %s: %w", stateID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", stateID, err)
	}

	cur, err := r.GetCurrent(ctx, userID)
	if err != nil {
		return err
	}
	hk := r.historyKey(userID)
	items, err := r.client.LRange(ctx, hk, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("delete %s: %w", stateID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if cur != nil && cur.StateID == stateID {
			p.Del(ctx, r.currentKey(userID))
		}
		for _, raw := range items {
			if st, err := decodeState(raw); err == nil && st.StateID == stateID {
				p.LRem(ctx, hk, 0, raw)
			}
		}
		p.Del(ctx, r.stateKey(stateID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", stateID, err)
	}
	return nil
}

func (r *RedisStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	cur, err := r.GetCurrent(ctx, userID)
	if err != nil {
		return 0, err
	}
	snaps, err := r.snapshots(ctx, userID)
	if err != nil {
		return 0, err
	}

	keys := []string{r.currentKey(userID), r.historyKey(userID)}
	seen := map[string]bool{}
	for _, s := range snaps {
		if !seen[s.StateID] {
			seen[s.StateID] = true
			keys = append(keys, r.stateKey(s.StateID))
		}
	}
	n := len(snaps)
	if cur != nil {
		n++
		if !seen[cur.StateID] {
			keys = append(keys, r.stateKey(cur.StateID))
		}
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("delete user %s: %w", userID, err)
	}
	return n, nil
}

func (r *RedisStore) ConflictUsers(ctx context.Context) ([]string, error) {
	prefix := r.opts.keyPrefix + ":user:"
	var out []string
	iter := r.client.Scan(ctx, 0, prefix+"*:current", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ":current")
		st, err := r.GetCurrent(ctx, userID)
		if err != nil {
			return nil, err
		}
		if st != nil && st.ConflictState.Active() {
			out = append(out, userID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("conflict users: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeState(raw string) (mood.EmotionalState, error) {
	var st mood.EmotionalState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return mood.EmotionalState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}
