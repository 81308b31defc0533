package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName 對應 content-type application/grpc+json
const codecName = "json"

// jsonCodec 以 JSON 編碼 gRPC 訊息，訊息型別就是本 package 的 struct，不需要產生 protobuf 程式碼
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

// Codec 回傳 server/client 共用的編碼器
func Codec() encoding.Codec {
	return jsonCodec{}
}
