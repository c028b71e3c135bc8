// Package token 校验 Shopify App Bridge 签发的会话令牌（JWT）。
package token

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionVerifier 负责会话令牌的校验，测试和本地工具也用它签发令牌。
type SessionVerifier struct {
	apiKey    string        // apiKey 是令牌 aud 中必须出现的应用 client id
	secretKey []byte        // secretKey 即应用的 API secret，用于 HS256 签名
	leeway    time.Duration // leeway 容忍 Shopify 与本机之间的时钟偏差
}

// SessionClaims 是 Shopify 会话令牌中的声明。
// iss 为 https://<shop>/admin，dest 为 https://<shop>，sub 为员工用户 id。
type SessionClaims struct {
	Dest string `json:"dest"`
	Sid  string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// NewSessionVerifier 创建一个新的 SessionVerifier 实例。
func NewSessionVerifier(apiKey, apiSecret string) *SessionVerifier {
	return &SessionVerifier{
		apiKey:    apiKey,
		secretKey: []byte(apiSecret),
		leeway:    5 * time.Second,
	}
}

// Verify 校验签名、有效期和 aud，并要求 dest 与 sub 存在。
func (v *SessionVerifier) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.apiKey),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("session token has no user")
	}
	if _, err := claims.Shop(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Shop 从 dest 中解析出店铺域名。
func (c *SessionClaims) Shop() (string, error) {
	u, err := url.Parse(c.Dest)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid dest claim %q", c.Dest)
	}
	return strings.ToLower(u.Host), nil
}

// Issue 按 Shopify 的格式签发一个会话令牌。
func (v *SessionVerifier) Issue(shop, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Dest: "https://" + shop,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + shop + "/admin",
			Subject:   userID,
			Audience:  jwt.ClaimStrings{v.apiKey},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}
