// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package psbtfaker

import (
	"github.com/nydig/psbtfaker/faker"
	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/policy"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	fakerLog *zap.SugaredLogger

	// logLevel is shared by every subsystem logger.
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	config := zap.NewDevelopmentConfig()
	config.Level = logLevel
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeCaller = nil
	rawLog := zap.Must(config.Build())
	fakerLog = rawLog.Sugar()
	keyring.UseLogger(fakerLog.With(zap.Any("pkg", "keyring")))
	policy.UseLogger(fakerLog.With(zap.Any("pkg", "policy")))
	faker.UseLogger(fakerLog.With(zap.Any("pkg", "faker")))
}

// SetLogLevel changes the level of all subsystem loggers.
func SetLogLevel(level zapcore.Level) {
	logLevel.SetLevel(level)
}
