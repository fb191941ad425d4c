package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tanq16/smartdl/internal/metrics"
	"github.com/tanq16/smartdl/internal/utils"
)

var (
	validate       *validator.Validate
	hexDigestRegex = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("hashalgo", func(fl validator.FieldLevel) bool {
		_, ok := hashFactory(fl.Field().String())
		return ok
	})
	// validator's hexadecimal also accepts a 0x prefix, which never matches a digest
	validate.RegisterValidation("hexdigest", func(fl validator.FieldLevel) bool {
		return hexDigestRegex.MatchString(fl.Field().String())
	})
}

type BasicAuth struct {
	Username string `validate:"required"`
	Password string
}

type HashSpec struct {
	Algorithm string `validate:"required,hashalgo"`
	Expected  string `validate:"required,hexdigest"`
}

// Config carries everything a task needs besides its mirrors and
// destination. Zero values select defaults.
type Config struct {
	Threads          int           `validate:"gte=0,lte=64"`
	ConnectTimeout   time.Duration `validate:"gte=0"`
	SpeedLimit       int64         `validate:"gte=0"` // bytes per second, 0 is unlimited
	MinChunkSize     int64         `validate:"gte=0"`
	RetriesPerMirror int           `validate:"gte=0"`
	RetryBackoff     time.Duration `validate:"gte=0"`
	BufferSize       int           `validate:"gte=0"`
	KeepAliveTimeout time.Duration `validate:"gte=0"`
	ReadTimeout      time.Duration `validate:"gte=0"` // idle limit per read, defaults to ConnectTimeout

	Headers       map[string]string `validate:"dive,keys,required,endkeys"`
	UserAgent     string
	BasicAuth     *BasicAuth
	BearerToken   string
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	Hash          *HashSpec
	S3            utils.S3Config `validate:"-"`

	SkipSpaceCheck bool
	Metrics        *metrics.Collector `validate:"-"`
}

func (c Config) withDefaults() Config {
	if c.Threads == 0 {
		c.Threads = utils.DefaultThreads
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = utils.DefaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = c.ConnectTimeout
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = utils.DefaultMinChunkSize
	}
	if c.RetriesPerMirror == 0 {
		c.RetriesPerMirror = utils.DefaultRetriesPerMirror
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.BufferSize == 0 {
		c.BufferSize = utils.DefaultBufferSize
	}
	return c
}

func (c Config) validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return newTaskError(KindInvalidConfig, err, "config validation failed")
	}
	fields := make([]string, 0, len(verrors))
	for _, verror := range verrors {
		fields = append(fields, fmt.Sprintf("%s: failed on '%s'", verror.Namespace(), verror.Tag()))
	}
	return newTaskError(KindInvalidConfig, nil, "%s", strings.Join(fields, "; "))
}

func (c Config) httpConfig() utils.HTTPClientConfig {
	cfg := utils.HTTPClientConfig{
		Timeout:        c.ConnectTimeout,
		KATimeout:      c.KeepAliveTimeout,
		ProxyURL:       c.ProxyURL,
		ProxyUsername:  c.ProxyUsername,
		ProxyPassword:  c.ProxyPassword,
		UserAgent:      c.UserAgent,
		Headers:        c.Headers,
		BearerToken:    c.BearerToken,
		HighThreadMode: c.Threads > 5,
	}
	if c.BasicAuth != nil {
		cfg.Username = c.BasicAuth.Username
		cfg.Password = c.BasicAuth.Password
	}
	return cfg
}
