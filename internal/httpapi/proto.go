package httpapi

import (
	"io"
	"net/http"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

// maxRequestBody caps JSON and protobuf request bodies. The largest request,
// an access rule, is well under 1 KiB.
const maxRequestBody = 4096

const protobufContentType = "application/x-protobuf"

// isProtobuf reports whether the request body is protobuf encoded. RFID
// readers send application/x-protobuf.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == protobufContentType ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func verifyResponseToProto(v types.VerifyResponse) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"rfid_id":     structpb.NewStringValue(v.RFIDID),
		"decision":    structpb.NewStringValue(v.Decision),
		"granted":     structpb.NewBoolValue(v.Granted),
		"message":     structpb.NewStringValue(v.Message),
		"server_time": structpb.NewStringValue(v.ServerTime),
	}}
}
