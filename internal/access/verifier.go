package access

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/diagramflow/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	issuer  = "diagramflow"
	subject = "access"
)

var (
	// ErrNotConfigured 服务端未配置访问密码。
	ErrNotConfigured = errors.New("access: password not configured")
	// ErrInvalidPassword 访问密码错误。
	ErrInvalidPassword = errors.New("access: invalid password")
)

// Token 是校验通过后签发的访问令牌。
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Verifier 校验访问密码并签发、校验 HS256 访问令牌。并发安全。
type Verifier struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewVerifier 创建校验器。未配置 TokenSecret 时由密码派生签名密钥，
// 因此修改密码会使已签发的令牌全部失效。
func NewVerifier(cfg config.AccessConfig, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Verifier{
		password: []byte(cfg.Password),
		ttl:      cfg.TokenTTL,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "access")),
	}
	if v.ttl <= 0 {
		v.ttl = config.DefaultAccessConfig().TokenTTL
	}
	switch {
	case cfg.TokenSecret != "":
		v.secret = []byte(cfg.TokenSecret)
	case cfg.Password != "":
		sum := sha256.Sum256([]byte("diagramflow-access-token:" + cfg.Password))
		v.secret = sum[:]
	}
	return v
}

// Configured 报告是否配置了访问密码。
func (v *Verifier) Configured() bool { return len(v.password) > 0 }

// Verify 校验密码，通过时签发令牌。
func (v *Verifier) Verify(password string) (Token, error) {
	if !v.Configured() {
		return Token{}, ErrNotConfigured
	}
	if !v.matchPassword(password) {
		return Token{}, ErrInvalidPassword
	}

	now := v.now()
	exp := now.Add(v.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return Token{}, fmt.Errorf("access: sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Check 实现 llm.TokenChecker：接受原始访问密码或 Verify 签发且未过期的令牌。
func (v *Verifier) Check(token string) bool {
	if !v.Configured() || token == "" {
		return false
	}
	if v.matchPassword(token) {
		return true
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		v.logger.Debug("access token rejected", zap.Error(err))
		return false
	}
	return parsed.Valid
}

func (v *Verifier) matchPassword(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), v.password) == 1
}
