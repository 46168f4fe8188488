package utils

import (
	"net/mail"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// ValidatePhone 大陆手机号
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidateEmail 只接受裸地址，不接受 "名字 <地址>" 形式
func ValidateEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && strings.EqualFold(addr.Address, email)
}
