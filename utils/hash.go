package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"FamilyWell/config"
)

// NormalizePhone 去掉空白、连字符与 +86 前缀，同一号码不同写法得到相同哈希
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9', r == '+':
			b.WriteRune(r)
		}
	}
	p := b.String()
	p = strings.TrimPrefix(p, "+86")
	if len(p) == 13 && strings.HasPrefix(p, "86") {
		p = p[2:]
	}
	return p
}

// HashPhone 加盐哈希，用于按手机号查重；格式为 盐 + ":" + 规范化号码
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(config.Cfg.PhoneHashSalt + ":" + NormalizePhone(phone)))
	return hex.EncodeToString(sum[:])
}
