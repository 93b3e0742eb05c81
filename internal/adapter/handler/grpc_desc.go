package handler

import (
	"context"

	"google.golang.org/grpc"
)

func unaryMethod[Req, Resp any](name string, call func(LendingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LendingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LendingServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var lendingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LendingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateLoan", LendingServer.CreateLoan),
		unaryMethod("GetLoan", LendingServer.GetLoan),
		unaryMethod("RenewLoan", LendingServer.RenewLoan),
		unaryMethod("ProcessReturn", LendingServer.ProcessReturn),
		unaryMethod("MarkLost", LendingServer.MarkLost),
		unaryMethod("MarkDamaged", LendingServer.MarkDamaged),
		unaryMethod("CancelLoan", LendingServer.CancelLoan),
		unaryMethod("PayFine", LendingServer.PayFine),
		unaryMethod("FindActiveLoansForBorrower", LendingServer.FindActiveLoansForBorrower),
		unaryMethod("CanBorrow", LendingServer.CanBorrow),
		unaryMethod("FindOverdueLoans", LendingServer.FindOverdueLoans),
		unaryMethod("FindLoansDueSoon", LendingServer.FindLoansDueSoon),
		unaryMethod("UpdateOverdueLoans", LendingServer.UpdateOverdueLoans),
		unaryMethod("AddTitle", LendingServer.AddTitle),
		unaryMethod("ResizeInventory", LendingServer.ResizeInventory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lending/v1/lending.proto",
}

// LendingClient calls LendingService over a JSON-coded gRPC connection.
type LendingClient struct {
	cc grpc.ClientConnInterface
}

func NewLendingClient(cc grpc.ClientConnInterface) *LendingClient {
	return &LendingClient{cc: cc}
}

func (c *LendingClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(JSONCodecName))
}

func (c *LendingClient) CreateLoan(ctx context.Context, in *CreateLoanRequest) (*LoanResponse, error) {
	out := new(LoanResponse)
	return out, c.invoke(ctx, "CreateLoan", in, out)
}

func (c *LendingClient) GetLoan(ctx context.Context, in *LoanIDRequest) (*LoanResponse, error) {
	out := new(LoanResponse)
	return out, c.invoke(ctx, "GetLoan", in, out)
}

func (c *LendingClient) ProcessReturn(ctx context.Context, in *LoanIDRequest) (*LoanResponse, error) {
	out := new(LoanResponse)
	return out, c.invoke(ctx, "ProcessReturn", in, out)
}

func (c *LendingClient) RenewLoan(ctx context.Context, in *LoanIDRequest) (*LoanResponse, error) {
	out := new(LoanResponse)
	return out, c.invoke(ctx, "RenewLoan", in, out)
}

func (c *LendingClient) AddTitle(ctx context.Context, in *AddTitleRequest) (*TitleResponse, error) {
	out := new(TitleResponse)
	return out, c.invoke(ctx, "AddTitle", in, out)
}

func (c *LendingClient) UpdateOverdueLoans(ctx context.Context) (*SweepResponse, error) {
	out := new(SweepResponse)
	return out, c.invoke(ctx, "UpdateOverdueLoans", &Empty{}, out)
}
