package settler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/redeem"
	"github.com/0gfoundation/0g-lazymint/internal/voucher"
)

const (
	maxAttempts = 3
	jobStateTTL = 24 * time.Hour
)

var ErrJobNotFound = errors.New("redemption job not found")

// Redeemer is satisfied by *redeem.Engine.
type Redeemer interface {
	Redeem(ctx context.Context, redeemer common.Address, v *voucher.NFTVoucher, payment *big.Int) (*redeem.Result, error)
}

// Enqueue records a queued job and pushes it for the consumer.
func Enqueue(ctx context.Context, rdb *redis.Client, redeemer common.Address, v *voucher.NFTVoucher, payment *big.Int) (*Job, error) {
	if payment == nil {
		payment = new(big.Int)
	}
	job := &Job{
		ID:          uuid.NewString(),
		Redeemer:    redeemer,
		Voucher:     v,
		Payment:     payment,
		SubmittedAt: time.Now().Unix(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	state, _ := json.Marshal(JobState{ID: job.ID, Status: StatusQueued, UpdatedAt: job.SubmittedAt})

	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, JobKeyPrefix+job.ID, string(state), jobStateTTL)
		pipe.RPush(ctx, QueueKey, string(raw))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// GetState returns the last recorded state of a job.
func GetState(ctx context.Context, rdb *redis.Client, id string) (*JobState, error) {
	raw, err := rdb.Get(ctx, JobKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var st JobState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode job state: %w", err)
	}
	return &st, nil
}

// Run is the consumer loop: BLPOP → redeem → record outcome.
func Run(ctx context.Context, rdb *redis.Client, engine Redeemer, blockTimeout time.Duration, log *zap.Logger) {
	log.Info("settler started", zap.String("queue", QueueKey))

	for {
		if ctx.Err() != nil {
			log.Info("settler stopped")
			return
		}

		// BLPOP blocks until an item appears or timeout
		results, err := rdb.BLPop(ctx, blockTimeout, QueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				log.Info("settler stopped")
				return
			}
			log.Error("settler: BLPOP error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// results[0] = key, results[1] = value
		Process(ctx, rdb, engine, results[1], log)
	}
}

// Process redeems one raw queue item and routes the outcome.
func Process(ctx context.Context, rdb *redis.Client, engine Redeemer, raw string, log *zap.Logger) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.Voucher == nil {
		log.Error("settler: undecodable job", zap.String("raw", raw), zap.Error(err))
		if err := rdb.RPush(context.WithoutCancel(ctx), DLQKey, raw).Err(); err != nil {
			log.Error("settler: DLQ push failed", zap.String("raw", raw), zap.Error(err))
		}
		return
	}
	job.Attempts++

	res, err := engine.Redeem(ctx, job.Redeemer, job.Voucher, job.Payment)
	HandleResult(ctx, rdb, &job, res, err, log)
}

// HandleResult records the outcome of one redemption attempt. The job has
// already been popped, so its writes ignore cancellation of ctx.
func HandleResult(ctx context.Context, rdb *redis.Client, job *Job, res *redeem.Result, err error, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	state := JobState{ID: job.ID, UpdatedAt: time.Now().Unix()}

	code, _ := redeem.Classify(err)
	switch {
	case err == nil:
		state.Status = StatusRedeemed
		state.Transfers = res.Transfers

	case code == redeem.CodeAlreadyMinted:
		state.Status = StatusDiscarded
		state.Code = code
		state.Error = err.Error()
		log.Warn("redemption discarded: token already minted",
			zap.String("job", job.ID),
			zap.String("token_id", job.Voucher.TokenID.String()),
		)

	case code == redeem.CodeInternal && job.Attempts < maxAttempts:
		state.Status = StatusFailed
		state.Code = code
		state.Error = "temporary failure, retrying"
		log.Error("redemption failed, re-queued",
			zap.String("job", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.Error(err),
		)
		push(ctx, rdb, QueueKey, job, log)

	default:
		state.Status = StatusRejected
		state.Code = code
		state.Error = err.Error()
		log.Warn("redemption rejected",
			zap.String("job", job.ID),
			zap.String("code", code),
		)
		push(ctx, rdb, DLQKey, job, log)
	}

	buf, _ := json.Marshal(state)
	if err := rdb.Set(ctx, JobKeyPrefix+job.ID, string(buf), jobStateTTL).Err(); err != nil {
		log.Error("settler: record job state", zap.String("job", job.ID), zap.Error(err))
	}
}

func push(ctx context.Context, rdb *redis.Client, key string, job *Job, log *zap.Logger) {
	raw, err := json.Marshal(job)
	if err == nil {
		err = rdb.RPush(ctx, key, string(raw)).Err()
	}
	if err != nil {
		log.Error("settler: push failed",
			zap.String("job", job.ID),
			zap.String("queue", key),
			zap.Error(err),
		)
	}
}
