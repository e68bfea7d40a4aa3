package sid

import (
	"fmt"

	"github.com/sony/sonyflake"
)

type Sid struct {
	sf *sonyflake.Sonyflake
}

func NewSid() *Sid {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{})
	if sf == nil {
		panic("sonyflake not created")
	}
	return &Sid{sf}
}

func (s Sid) GenString() (string, error) {
	id, err := s.sf.NextID()
	if err != nil {
		return "", err
	}
	return IntToBase62(int(id)), nil
}

func (s Sid) GenUint64() (uint64, error) {
	return s.sf.NextID()
}

// GenRef 生成形如 OpaqueRef:<base62> 的集群对象引用
func (s Sid) GenRef() (string, error) {
	id, err := s.sf.NextID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("OpaqueRef:%s", IntToBase62(int(id))), nil
}

func IntToBase62(n int) string {
	if n == 0 {
		return "0"
	}
	base := "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	var result []byte
	for n > 0 {
		result = append([]byte{base[n%62]}, result...)
		n /= 62
	}
	return string(result)
}
