// Package main is a viam module serving the swerve drive base.
package main

import (
	"context"

	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/utils"

	"swervebase/swerve"
)

// Version number
var version = "0.1.0"

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("swervebase"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	logger.Infow("starting swerve base module", "version", version)

	swerveModule, err := module.NewModuleFromArgs(ctx)
	if err != nil {
		return err
	}

	if err = swerveModule.AddModelFromRegistry(ctx, base.API, swerve.Model); err != nil {
		return err
	}

	err = swerveModule.Start(ctx)
	defer swerveModule.Close(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
