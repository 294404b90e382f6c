package component

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// validateModules compiles every core module embedded in the component,
// including those of nested components, and returns how many were checked.
func validateModules(ctx context.Context, data []byte) (int, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCoreFeatures(api.CoreFeaturesV2)
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer rt.Close(ctx)

	v := &validator{ctx: ctx, rt: rt}
	if err := v.component(data, 0); err != nil {
		return v.modules, err
	}
	return v.modules, nil
}

type validator struct {
	ctx     context.Context
	rt      wazero.Runtime
	modules int
}

func (v *validator) component(data []byte, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("component nesting exceeds %d", maxDepth)
	}
	if err := checkPreamble(data); err != nil {
		return err
	}
	return eachSection(data, func(id byte, payload []byte) error {
		switch id {
		case secCoreModule:
			return v.module(payload)
		case secComponent:
			return v.component(payload, depth+1)
		}
		return nil
	})
}

func (v *validator) module(data []byte) error {
	if err := v.ctx.Err(); err != nil {
		return err
	}
	compiled, err := v.rt.CompileModule(v.ctx, data)
	if err != nil {
		return fmt.Errorf("core module %d: %w", v.modules, err)
	}
	Logger().Debug("compiled core module",
		zap.Int("index", v.modules),
		zap.Int("bytes", len(data)),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	v.modules++
	return compiled.Close(v.ctx)
}
