package service

import (
	"context"
	"fmt"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// ConfigFlow is the single step wizard that creates config entries.
type ConfigFlow struct {
	newClient port.MeterClientFactory
	logger    *zap.Logger
}

func NewConfigFlow(newClient port.MeterClientFactory, logger *zap.Logger) *ConfigFlow {
	return &ConfigFlow{
		newClient: newClient,
		logger:    logger.With(zap.String("component", "config_flow")),
	}
}

// StepUser renders the form when input is nil, otherwise validates it.
// Validation failures never escape: they become a form error.
func (f *ConfigFlow) StepUser(ctx context.Context, input *domain.UserInput) domain.FlowResult {
	if input == nil {
		return showUserForm(nil)
	}

	info, err := f.safeValidate(ctx, *input)
	if err == nil {
		data := *input
		return domain.FlowResult{
			Type:   domain.FLOW_RESULT_CREATE_ENTRY,
			StepId: domain.STEP_ID_USER,
			Title:  info.Title,
			Data:   &data,
		}
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindUnknown, domain.KindRemoteFailure:
		f.logger.Error("Unexpected exception", zap.Stringer("kind", kind), zap.Error(err))
	default:
		f.logger.Info("config_flow: validation failed", zap.Stringer("kind", kind), zap.Error(err))
	}
	return showUserForm(map[string]domain.ErrorCode{domain.ERRORS_BASE: kind.Code()})
}

// ValidateInput checks that the token can list meters.
func (f *ConfigFlow) ValidateInput(ctx context.Context, input domain.UserInput) (*domain.ValidationInfo, error) {
	result, err := f.newClient(input.Token).GetMeters(ctx)
	if err != nil {
		return nil, transportError(err)
	}
	if !result.OK() {
		return nil, statusError(result.StatusCode)
	}
	return &domain.ValidationInfo{
		Title:  domain.ENTRY_TITLE,
		Token:  input.Token,
		Meters: result,
	}, nil
}

func (f *ConfigFlow) safeValidate(ctx context.Context, input domain.UserInput) (info *domain.ValidationInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.RemoteError{Kind: domain.KindUnknown, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return f.ValidateInput(ctx, input)
}

func showUserForm(errors map[string]domain.ErrorCode) domain.FlowResult {
	return domain.FlowResult{
		Type:       domain.FLOW_RESULT_FORM,
		StepId:     domain.STEP_ID_USER,
		DataSchema: domain.UserDataSchema(),
		Errors:     errors,
	}
}
