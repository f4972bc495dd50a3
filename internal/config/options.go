package config

// StoreOptions is a go-flags option group that overrides the store section of
// the configuration file. Empty values leave the file settings untouched.
type StoreOptions struct {
	Driver        string `long:"store"          env:"STORE_DRIVER"   description:"Store driver" choice:"memory" choice:"file" choice:"redis" choice:"postgres" choice:"s3"`
	Path          string `long:"store-path"     env:"STORE_PATH"     description:"Root directory for the file store"`
	RedisAddr     string `long:"redis-addr"     env:"REDIS_ADDR"     description:"Redis address (host:port)"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db"       env:"REDIS_DB"       description:"Redis database number" default:"-1"`
	PostgresDSN   string `long:"pg-dsn"         env:"PG_DSN"         description:"PostgreSQL connection string"`
	S3Endpoint    string `long:"s3-endpoint"    env:"S3_ENDPOINT"    description:"S3 endpoint (host:port)"`
	S3AccessKey   string `long:"s3-access-key"  env:"S3_ACCESS_KEY"  description:"S3 access key"`
	S3SecretKey   string `long:"s3-secret-key"  env:"S3_SECRET_KEY"  description:"S3 secret key"`
	S3Bucket      string `long:"s3-bucket"      env:"S3_BUCKET"      description:"S3 bucket"`
	S3UseSSL      bool   `long:"s3-ssl"         env:"S3_USE_SSL"     description:"Use TLS for S3"`
}

// Apply copies every non-empty option into s.
func (o StoreOptions) Apply(s *Store) {
	if o.Driver != "" {
		s.Driver = o.Driver
	}
	if o.Path != "" {
		s.Path = o.Path
	}
	if o.RedisAddr != "" {
		s.Redis.Addr = o.RedisAddr
	}
	if o.RedisPassword != "" {
		s.Redis.Password = o.RedisPassword
	}
	if o.RedisDB >= 0 {
		s.Redis.DB = o.RedisDB
	}
	if o.PostgresDSN != "" {
		s.Postgres.DSN = o.PostgresDSN
	}
	if o.S3Endpoint != "" {
		s.S3.Endpoint = o.S3Endpoint
	}
	if o.S3AccessKey != "" {
		s.S3.AccessKey = o.S3AccessKey
	}
	if o.S3SecretKey != "" {
		s.S3.SecretKey = o.S3SecretKey
	}
	if o.S3Bucket != "" {
		s.S3.Bucket = o.S3Bucket
	}
	if o.S3UseSSL {
		s.S3.UseSSL = true
	}
}
