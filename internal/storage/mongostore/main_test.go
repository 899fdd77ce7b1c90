package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mongoCli *mongo.Client
	mongoURI string
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		logrus.Warnf("Docker unavailable, mongo tests will be skipped: %s", err)
		return m.Run()
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "7",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		logrus.Warnf("Could not start mongo, tests will be skipped: %s", err)
		return m.Run()
	}
	defer func() {
		if err := pool.Purge(resource); err != nil {
			logrus.Errorf("Could not purge resource: %s", err)
		}
	}()
	_ = resource.Expire(120)

	ctx := context.Background()
	pool.MaxWait = time.Minute
	err = pool.Retry(func() error {
		uri := fmt.Sprintf("mongodb://localhost:%s", resource.GetPort("27017/tcp"))
		cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		if err := cli.Ping(ctx, nil); err != nil {
			_ = cli.Disconnect(ctx)
			return err
		}
		mongoCli = cli
		mongoURI = uri
		return nil
	})
	if err != nil {
		logrus.Errorf("Could not connect to mongo: %s", err)
		return 1
	}
	defer mongoCli.Disconnect(ctx)

	return m.Run()
}

// newTestStore returns a store on a fresh database, dropped at cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if mongoCli == nil {
		t.Skip("mongo not available")
	}
	ctx := context.Background()
	name := fmt.Sprintf("expensetracker_test_%d", time.Now().UnixNano())
	s := New(mongoCli, name)
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mongoCli.Database(name).Drop(ctx); err != nil {
			t.Error(err)
		}
	})
	return s
}
