package token

import (
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hertz-contrib/jwt"

	"FamilyWell/config"
	"FamilyWell/pkg/errors"
)

const (
	IdentityKey = "uid"
	refreshType = "refresh"
)

// 这个实例会被 middleware 和 token 包共同使用
var sharedGenerator *jwt.HertzJWTMiddleware

// Pair 一组 access / refresh token
type Pair struct {
	AccessToken  string
	RefreshToken string
	RefreshID    string // refresh token 的 jti，服务端据此轮换
	ExpiresIn    int
}

func Init() error {
	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(config.Cfg.JWTSecret),
		Timeout:     time.Duration(config.Cfg.JWTExpireMinutes) * time.Minute,
		MaxRefresh:  RefreshTTL(),
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

func RefreshTTL() time.Duration {
	return time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour
}

// GenerateTokenPair 生成 access token 和 refresh token，身份为数字用户 ID
func GenerateTokenPair(userID int64) (Pair, error) {
	if sharedGenerator == nil {
		return Pair{}, errors.ErrTokenGeneratorNotInitialized
	}

	now := sharedGenerator.TimeFunc()
	uid := strconv.FormatInt(userID, 10)
	expiresAt := now.Add(sharedGenerator.Timeout)

	access, err := sign(jwtv5.MapClaims{
		IdentityKey: uid,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	})
	if err != nil {
		return Pair{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshID := uuid.NewString()
	refresh, err := sign(jwtv5.MapClaims{
		IdentityKey: uid,
		"jti":       refreshID,
		"type":      refreshType,
		"iat":       now.Unix(),
		"exp":       now.Add(sharedGenerator.MaxRefresh).Unix(),
	})
	if err != nil {
		return Pair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		RefreshID:    refreshID,
		ExpiresIn:    int(sharedGenerator.Timeout.Seconds()),
	}, nil
}

func sign(claims jwtv5.MapClaims) (string, error) {
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(sharedGenerator.Key)
}

// ValidateRefreshToken 验证 refresh token，返回用户 ID 与 jti
func ValidateRefreshToken(tokenString string) (userID int64, refreshID string, err error) {
	if sharedGenerator == nil {
		return 0, "", errors.ErrTokenGeneratorNotInitialized
	}

	parsed, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(t *jwtv5.Token) (interface{}, error) {
		if t.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return sharedGenerator.Key, nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return 0, "", errors.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return 0, "", errors.ErrInvalidTokenClaims
	}

	if t, _ := claims["type"].(string); t != refreshType {
		return 0, "", errors.ErrInvalidTokenType
	}

	userID, err = ParseIdentity(claims[IdentityKey])
	if err != nil {
		return 0, "", err
	}

	refreshID, _ = claims["jti"].(string)
	if refreshID == "" {
		return 0, "", errors.ErrInvalidTokenClaims
	}

	return userID, refreshID, nil
}

// ParseIdentity claims 中的 uid 可能是字符串或数字
func ParseIdentity(v interface{}) (int64, error) {
	switch uid := v.(type) {
	case string:
		id, err := strconv.ParseInt(uid, 10, 64)
		if err != nil {
			return 0, errors.ErrUserIDNotFound
		}
		return id, nil
	case float64:
		return int64(uid), nil
	default:
		return 0, errors.ErrUserIDNotFound
	}
}
