package cmd

import (
	"time"

	"github.com/foomo/objectregistry/pkg/registry"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func logLevelFlag(v *viper.Viper) string {
	return v.GetString("log.level")
}

func addLogLevelFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-level", "info", "log level")
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

func logFormatFlag(v *viper.Viper) string {
	return v.GetString("log.format")
}

func addLogFormatFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-format", "console", "log format (json, console)")
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindEnv("log.format", "LOG_FORMAT")
}

func configFlag(v *viper.Viper) string {
	return v.GetString("config")
}

func addConfigFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("config", "", "Path to a yaml config file")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindEnv("config", "OBJECT_REGISTRY_CONFIG")
}

func backendFlag(v *viper.Viper) string {
	return v.GetString("backend.type")
}

func addBackendFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backend", "local", "Backend type (local, s3, blob)")
	_ = v.BindPFlag("backend.type", flags.Lookup("backend"))
	_ = v.BindEnv("backend.type", "OBJECT_REGISTRY_BACKEND")
}

func localDirFlag(v *viper.Viper) string {
	return v.GetString("local.dir")
}

func addLocalDirFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("local-dir", "./objectregistry", "Root directory of the local backend")
	_ = v.BindPFlag("local.dir", flags.Lookup("local-dir"))
	_ = v.BindEnv("local.dir", "OBJECT_REGISTRY_LOCAL_DIR")
}

func s3BucketFlag(v *viper.Viper) string {
	return v.GetString("s3.bucket")
}

func addS3BucketFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("s3-bucket", "", "S3 bucket name")
	_ = v.BindPFlag("s3.bucket", flags.Lookup("s3-bucket"))
	_ = v.BindEnv("s3.bucket", "OBJECT_REGISTRY_S3_BUCKET")
}

func s3PrefixFlag(v *viper.Viper) string {
	return v.GetString("s3.prefix")
}

func addS3PrefixFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("s3-prefix", "", "Key prefix inside the S3 bucket")
	_ = v.BindPFlag("s3.prefix", flags.Lookup("s3-prefix"))
	_ = v.BindEnv("s3.prefix", "OBJECT_REGISTRY_S3_PREFIX")
}

func s3EndpointFlag(v *viper.Viper) string {
	return v.GetString("s3.endpoint")
}

func addS3EndpointFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("s3-endpoint", "", "Custom endpoint of an S3 compatible store")
	_ = v.BindPFlag("s3.endpoint", flags.Lookup("s3-endpoint"))
	_ = v.BindEnv("s3.endpoint", "OBJECT_REGISTRY_S3_ENDPOINT")
}

func s3RegionFlag(v *viper.Viper) string {
	return v.GetString("s3.region")
}

func addS3RegionFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("s3-region", "", "S3 region")
	_ = v.BindPFlag("s3.region", flags.Lookup("s3-region"))
	_ = v.BindEnv("s3.region", "OBJECT_REGISTRY_S3_REGION")
}

func s3PathStyleFlag(v *viper.Viper) bool {
	return v.GetBool("s3.path_style")
}

func addS3PathStyleFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("s3-path-style", false, "Use path style addressing")
	_ = v.BindPFlag("s3.path_style", flags.Lookup("s3-path-style"))
	_ = v.BindEnv("s3.path_style", "OBJECT_REGISTRY_S3_PATH_STYLE")
}

func blobBucketFlag(v *viper.Viper) string {
	return v.GetString("blob.bucket")
}

func addBlobBucketFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("blob-bucket", "", "Blob bucket URL (gs://, azblob://, file://, mem://)")
	_ = v.BindPFlag("blob.bucket", flags.Lookup("blob-bucket"))
	_ = v.BindEnv("blob.bucket", "OBJECT_REGISTRY_BLOB_BUCKET")
}

func blobPrefixFlag(v *viper.Viper) string {
	return v.GetString("blob.prefix")
}

func addBlobPrefixFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("blob-prefix", "", "Key prefix inside the blob bucket")
	_ = v.BindPFlag("blob.prefix", flags.Lookup("blob-prefix"))
	_ = v.BindEnv("blob.prefix", "OBJECT_REGISTRY_BLOB_PREFIX")
}

func lockTimeoutFlag(v *viper.Viper) time.Duration {
	return v.GetDuration("lock.timeout")
}

func addLockTimeoutFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Duration("lock-timeout", registry.DefaultLockTimeout, "How long to wait for a lock")
	_ = v.BindPFlag("lock.timeout", flags.Lookup("lock-timeout"))
	_ = v.BindEnv("lock.timeout", "OBJECT_REGISTRY_LOCK_TIMEOUT")
}
