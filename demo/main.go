package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	ctrace "github.com/Nordstrom/ctrace-pipeline"
	"github.com/Nordstrom/ctrace-pipeline/concurrent"
	"github.com/Nordstrom/ctrace-pipeline/config"
	chttp "github.com/Nordstrom/ctrace-pipeline/http"
	"github.com/Nordstrom/ctrace-pipeline/log"
	"github.com/Nordstrom/ctrace-pipeline/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configPath = flag.String("config", "", "path to a ctrace YAML config")
	addr       = flag.String("addr", ":8004", "listen address")
)

type demo struct {
	client *http.Client
	exec   concurrent.Submitter
	self   string
}

// send calls the ok service for one region.
func (d *demo) send(ctx context.Context, region string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", d.self+"/ok/"+url.PathEscape(region), nil)
	if err != nil {
		return "", err
	}
	res, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("%s: HTTP %d", region, res.StatusCode)
	}
	return string(body), nil
}

// gateway fans out to the ok service, one executor task per region.
func (d *demo) gateway(w http.ResponseWriter, r *http.Request) {
	regions := strings.Split(r.URL.Query().Get("regions"), ",")

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		msgs = make([]string, len(regions))
		errs []string
	)
	for i, region := range regions {
		wg.Add(1)
		err := d.exec.Submit(r.Context(), func(ctx context.Context) {
			defer wg.Done()
			msg, err := d.send(ctx, region)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ctrace.LogErrorObject(ctx, err)
				errs = append(errs, err.Error())
				return
			}
			msgs[i] = msg
		})
		if err != nil {
			wg.Done()
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		http.Error(w, strings.Join(errs, "\n"), http.StatusBadGateway)
		return
	}
	w.Write([]byte(strings.Join(msgs, "\n")))
}

func ok(w http.ResponseWriter, r *http.Request) {
	region := mux.Vars(r)["region"]
	if region == "" {
		http.Error(w, "region required", http.StatusBadRequest)
		return
	}
	msg := fmt.Sprintf("Hello %v!", region)
	ctrace.LogInfo(r.Context(), "generate-msg", log.Message(msg))
	w.Write([]byte(msg))
}

func fail(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte("There was an ERROR!"))
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	return config.FromEnv()
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if _, shutdown, err := ctrace.InitFromConfig(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	} else {
		defer shutdown()
	}

	listener, err := metrics.NewListener(prometheus.DefaultRegisterer, metrics.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	exec := concurrent.NewExecutor(4)
	defer exec.Shutdown()

	d := &demo{
		client: &http.Client{Transport: chttp.NewTracedTransport(nil,
			chttp.WithConfig(cfg.Instrumenter(config.HTTPClient)),
			chttp.WithOperationListener(listener))},
		exec: concurrent.NewBounded(exec, 64),
		self: "http://" + *addr,
	}
	if strings.HasPrefix(*addr, ":") {
		d.self = "http://127.0.0.1" + *addr
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	api := r.NewRoute().Subrouter()
	api.Use(chttp.Middleware(
		chttp.WithConfig(cfg.Instrumenter(config.HTTPServer)),
		chttp.WithOperationListener(listener)))
	api.HandleFunc("/gateway", d.gateway)
	api.HandleFunc("/ok/{region}", ok)
	api.HandleFunc("/err", fail)

	fmt.Printf("ctrace demo listening at %v ...\n", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
