package task

import (
	"context"

	"aura-payments/pkg/errutil"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const JobsServiceName = "aurapayments.jobs.v1.Jobs"

// JobsServer is the worker's operator RPC surface. Requests and responses are
// structpb.Struct messages so no generated code is needed.
type JobsServer interface {
	// Trigger enqueues an out-of-schedule run. Request fields: name,
	// optional payload object. Response fields: task_id, queue.
	Trigger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var jobsServiceDesc = grpc.ServiceDesc{
	ServiceName: JobsServiceName,
	HandlerType: (*JobsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Trigger", Handler: jobsTriggerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aurapayments/jobs/v1/jobs.proto",
}

func RegisterJobsServer(srv *grpc.Server, svc *Service) {
	srv.RegisterService(&jobsServiceDesc, &jobsRPC{svc: svc})
}

func jobsTriggerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JobsServer).Trigger(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + JobsServiceName + "/Trigger"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JobsServer).Trigger(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type jobsRPC struct {
	svc *Service
}

func (r *jobsRPC) Trigger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, errutil.BadRequest("name is required", nil, errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}

	var payload []byte
	if p := fields["payload"].GetStructValue(); p != nil {
		b, err := p.MarshalJSON()
		if err != nil {
			return nil, errutil.BadRequest("invalid payload", err)
		}
		payload = b
	}

	info, err := r.svc.Trigger(ctx, name, payload)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"task_id": info.ID,
		"queue":   info.Queue,
	})
}
