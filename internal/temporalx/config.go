package temporalx

import (
	"time"

	"github.com/yungbote/vidstream-backend/internal/platform/envutil"
)

// Config is the Temporal connection used for job_run execution. An empty
// Address leaves jobs on the polling worker.
type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	DialTimeout time.Duration
	// ConnectWait bounds how long dialing and namespace checks keep
	// retrying while the cluster comes up.
	ConnectWait time.Duration

	AutoRegisterNamespace bool
	RetentionDays         int
}

func LoadConfig() Config {
	cfg := Config{
		Address:               envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace:             envutil.String("TEMPORAL_NAMESPACE", "vidstream"),
		TaskQueue:             envutil.String("TEMPORAL_TASK_QUEUE", "vidstream"),
		DialTimeout:           envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5),
		ConnectWait:           envutil.Seconds("TEMPORAL_CONNECT_WAIT_SECONDS", 60),
		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
	}
	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = 7
	}
	if cfg.RetentionDays > 365 {
		cfg.RetentionDays = 365
	}
	return cfg
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
