// Package metrics counts what a pack or unpack run did and writes the
// counts in the Prometheus text format for a node exporter textfile
// collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "omero_transfer"

// Collector is a prometheus.Collector over the counters of one run.
type Collector struct {
	imagesPacked       prometheus.Counter
	imagesMapped       prometheus.Counter
	imagesSkipped      prometheus.Counter
	annotationsCreated prometheus.Counter
	roisCreated        prometheus.Counter
	linksCreated       prometheus.Counter
	runs               *prometheus.CounterVec
}

// NewCollector returns a Collector with every counter at zero.
func NewCollector() *Collector {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		})
	}
	return &Collector{
		imagesPacked:       counter("images_packed_total", "Images written into a package."),
		imagesMapped:       counter("images_mapped_total", "Package images matched to destination images."),
		imagesSkipped:      counter("images_skipped_total", "Package images left unmatched on unpack."),
		annotationsCreated: counter("annotations_created_total", "Annotations created on the destination."),
		roisCreated:        counter("rois_created_total", "ROIs created on the destination."),
		linksCreated:       counter("links_created_total", "Hierarchy and annotation links created on the destination."),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Completed runs by operation and result.",
		}, []string{"operation", "result"}),
	}
}

func (c *Collector) ImagesPacked(n int)       { c.imagesPacked.Add(float64(n)) }
func (c *Collector) ImagesMapped(n int)       { c.imagesMapped.Add(float64(n)) }
func (c *Collector) ImagesSkipped(n int)      { c.imagesSkipped.Add(float64(n)) }
func (c *Collector) AnnotationsCreated(n int) { c.annotationsCreated.Add(float64(n)) }
func (c *Collector) ROIsCreated(n int)        { c.roisCreated.Add(float64(n)) }
func (c *Collector) LinksCreated(n int)       { c.linksCreated.Add(float64(n)) }

// Run records the end of an operation; err nil counts as success.
func (c *Collector) Run(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.runs.WithLabelValues(operation, result).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.imagesPacked.Describe(ch)
	c.imagesMapped.Describe(ch)
	c.imagesSkipped.Describe(ch)
	c.annotationsCreated.Describe(ch)
	c.roisCreated.Describe(ch)
	c.linksCreated.Describe(ch)
	c.runs.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.imagesPacked.Collect(ch)
	c.imagesMapped.Collect(ch)
	c.imagesSkipped.Collect(ch)
	c.annotationsCreated.Collect(ch)
	c.roisCreated.Collect(ch)
	c.linksCreated.Collect(ch)
	c.runs.Collect(ch)
}

// WriteFile writes the counters to path in the text exposition format.
func (c *Collector) WriteFile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
