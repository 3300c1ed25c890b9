package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/judger/repository"
	pkgerrors "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	livenessHashKey = "judger:liveness"

	defaultOnlineWindow = 2 * time.Minute
)

// Config holds the dependencies of JudgerService.
type Config struct {
	Repo         repository.JudgerRepository
	Cache        cache.Cache
	OnlineWindow time.Duration
}

// JudgerService manages the judge worker registry: registration, per-request
// key authentication and heartbeat liveness.
type JudgerService struct {
	repo         repository.JudgerRepository
	cache        cache.Cache
	onlineWindow time.Duration
}

func NewJudgerService(cfg Config) (*JudgerService, error) {
	if cfg.Repo == nil {
		return nil, errors.New("judger repository is required")
	}
	window := cfg.OnlineWindow
	if window <= 0 {
		window = defaultOnlineWindow
	}
	return &JudgerService{
		repo:         cfg.Repo,
		cache:        cfg.Cache,
		onlineWindow: window,
	}, nil
}

// Register creates a judger and returns the generated plaintext key. The key
// is not recoverable afterwards; only its bcrypt hash is stored.
func (s *JudgerService) Register(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", pkgerrors.New(pkgerrors.InvalidParams).WithMessage("judger name is required")
	}
	key := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.InternalServerError)
	}
	judger := &repository.Judger{Name: name, KeyHash: string(hash)}
	if _, err := s.repo.Create(ctx, nil, judger); err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	return key, nil
}

// Authenticate checks the name/key pair against the registry. Both an unknown
// name and a wrong key come back as the same coded error.
func (s *JudgerService) Authenticate(ctx context.Context, name, key string) (*repository.Judger, error) {
	if name == "" || key == "" {
		return nil, pkgerrors.New(pkgerrors.JudgerKeyInvalid)
	}
	judger, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrJudgerNotFound) {
			return nil, pkgerrors.New(pkgerrors.JudgerKeyInvalid)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(judger.KeyHash), []byte(key)); err != nil {
		return nil, pkgerrors.New(pkgerrors.JudgerKeyInvalid)
	}
	return judger, nil
}

// Heartbeat records the caller's address and ping time in the registry and in
// the Redis liveness hash.
func (s *JudgerService) Heartbeat(ctx context.Context, name, ipAddress string) error {
	now := time.Now().UTC()
	if err := s.repo.RecordHeartbeat(ctx, name, ipAddress, now); err != nil {
		if errors.Is(err, repository.ErrJudgerNotFound) {
			return pkgerrors.New(pkgerrors.JudgerNotFound)
		}
		return pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	if s.cache != nil {
		if err := s.cache.HSet(ctx, livenessHashKey, name, strconv.FormatInt(now.Unix(), 10)); err != nil {
			logger.Warn(ctx, "failed to record judger liveness",
				zap.String("judger", name),
				zap.Error(err))
		}
	}
	return nil
}

// Status is a registry row combined with liveness.
type Status struct {
	Name      string
	IPAddress string
	LastPing  *time.Time
	Online    bool
}

// List returns every registered judger with an online flag derived from the
// liveness hash, falling back to the registry's last_ping column.
func (s *JudgerService) List(ctx context.Context) ([]*Status, error) {
	judgers, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}

	liveness := map[string]string{}
	if s.cache != nil {
		if fields, err := s.cache.HGetAll(ctx, livenessHashKey); err == nil {
			liveness = fields
		}
	}

	now := time.Now().UTC()
	statuses := make([]*Status, 0, len(judgers))
	for _, judger := range judgers {
		status := &Status{
			Name:      judger.Name,
			IPAddress: judger.IPAddress,
			LastPing:  judger.LastPing,
		}
		if raw, ok := liveness[judger.Name]; ok {
			if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
				pinged := time.Unix(unix, 0).UTC()
				status.Online = now.Sub(pinged) <= s.onlineWindow
				if status.LastPing == nil || pinged.After(*status.LastPing) {
					status.LastPing = &pinged
				}
			}
		} else if judger.LastPing != nil {
			status.Online = now.Sub(*judger.LastPing) <= s.onlineWindow
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
