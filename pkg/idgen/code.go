package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet 去掉了 0/O/1/I/L 等易混淆字符
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateCode 生成兑换码，prefix 可为空
func GenerateCode(prefix string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("兑换码长度必须大于0")
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}
