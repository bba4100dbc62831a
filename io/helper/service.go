// Package helper is the storage-helper service: an out-of-process worker
// that inspects package archives, checks free space and copies package bytes
// into their placement. It is served over gRPC with a codec that carries
// protobuf well-known types as protobuf and plain structs as JSON.
package helper

import (
	"context"
	"encoding/json"

	"github.com/vadiminshakov/installd/core/dto"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "installd.StorageHelper"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

func (codec) Name() string {
	return "installd"
}

// FreeSpaceRequest asks whether a package fits in a placement.
type FreeSpaceRequest struct {
	URI           string `json:"uri"`
	ForwardLocked bool   `json:"forwardLocked"`
	Threshold     int64  `json:"threshold"`
}

// FreeSpaceResponse answers a FreeSpaceRequest.
type FreeSpaceResponse struct {
	Fits bool `json:"fits"`
}

// CopyRequest copies an archive, or its public part, to Dest.
type CopyRequest struct {
	URI  string `json:"uri"`
	Dest string `json:"dest"`
	Mode uint32 `json:"mode"`
}

// CopyResponse carries the copy status.
type CopyResponse struct {
	Status dto.Status `json:"status"`
}

// ContainerCopyResponse carries the path of the populated container.
type ContainerCopyResponse struct {
	Path string `json:"path"`
}

// MinimalInfoRequest asks for placement advice about an archive.
type MinimalInfoRequest struct {
	Path      string           `json:"path"`
	Flags     dto.InstallFlags `json:"flags"`
	Threshold int64            `json:"threshold"`
}

// StorageHelperServer is the service implemented by the helper process.
type StorageHelperServer interface {
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	CheckInternalFreeSpace(context.Context, *FreeSpaceRequest) (*FreeSpaceResponse, error)
	CheckExternalFreeSpace(context.Context, *FreeSpaceRequest) (*FreeSpaceResponse, error)
	CopyResource(context.Context, *CopyRequest) (*CopyResponse, error)
	CopyPublicResources(context.Context, *CopyRequest) (*CopyResponse, error)
	CopyResourceToContainer(context.Context, *dto.ContainerCopyRequest) (*ContainerCopyResponse, error)
	CalculateDirectorySize(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	GetMinimalPackageInfo(context.Context, *MinimalInfoRequest) (*dto.PackageInfoLite, error)
}

// RegisterStorageHelperServer registers srv on s.
func RegisterStorageHelperServer(s *grpc.Server, srv StorageHelperServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StorageHelperServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", StorageHelperServer.Ping),
		unary("CheckInternalFreeSpace", StorageHelperServer.CheckInternalFreeSpace),
		unary("CheckExternalFreeSpace", StorageHelperServer.CheckExternalFreeSpace),
		unary("CopyResource", StorageHelperServer.CopyResource),
		unary("CopyPublicResources", StorageHelperServer.CopyPublicResources),
		unary("CopyResourceToContainer", StorageHelperServer.CopyResourceToContainer),
		unary("CalculateDirectorySize", StorageHelperServer.CalculateDirectorySize),
		unary("GetMinimalPackageInfo", StorageHelperServer.GetMinimalPackageInfo),
	},
	Metadata: "installd/helper",
}

func unary[Req, Resp any](method string, call func(StorageHelperServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StorageHelperServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(StorageHelperServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}
