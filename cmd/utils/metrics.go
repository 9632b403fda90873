// Copyright 2025 The go-taskhive Authors
// This file is part of go-taskhive.
//
// go-taskhive is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-taskhive is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-taskhive. If not, see <http://www.gnu.org/licenses/>.

package utils

import (
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/metrics"
	"github.com/taskhive/go-taskhive/metrics/influxdb"
)

var (
	MetricsEnabledFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and reporting",
	}
	MetricsEnableInfluxDBFlag = &cli.BoolFlag{
		Name:  "metrics.influxdb",
		Usage: "Enable metrics export/push to an external InfluxDB database",
	}
	MetricsInfluxDBEndpointFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.endpoint",
		Usage: "InfluxDB API endpoint to report metrics to",
		Value: "http://localhost:8086",
	}
	MetricsInfluxDBDatabaseFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.database",
		Usage: "InfluxDB database name to push reported metrics to",
		Value: "taskhive",
	}
	MetricsInfluxDBUsernameFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.username",
		Usage: "Username to authorize access to the database",
		Value: "test",
	}
	MetricsInfluxDBPasswordFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.password",
		Usage: "Password to authorize access to the database",
		Value: "test",
	}
	// Tags are part of every measurement sent to InfluxDB. Queries on tags are faster in InfluxDB.
	// For example `host` tag could be used so that we can group all nodes and average a measurement
	// across all of them, but also so that we can select a specific node and inspect its measurements.
	// https://docs.influxdata.com/influxdb/v1.4/concepts/key_concepts/#tag-key
	MetricsInfluxDBTagsFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.tags",
		Usage: "Comma-separated InfluxDB tags (key/values) attached to all measurements",
		Value: "host=localhost",
	}
	MetricsEnableInfluxDBV2Flag = &cli.BoolFlag{
		Name:  "metrics.influxdbv2",
		Usage: "Enable metrics export/push to an external InfluxDB v2 database",
	}
	MetricsInfluxDBTokenFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.token",
		Usage: "Token to authorize access to the database (v2 only)",
		Value: "test",
	}
	MetricsInfluxDBBucketFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.bucket",
		Usage: "InfluxDB bucket name to push reported metrics to (v2 only)",
		Value: "taskhive",
	}
	MetricsInfluxDBOrganizationFlag = &cli.StringFlag{
		Name:  "metrics.influxdb.organization",
		Usage: "InfluxDB organization name (v2 only)",
		Value: "taskhive",
	}
)

// MetricsFlags is the flag group covering the metrics reporting system.
var MetricsFlags = []cli.Flag{
	MetricsEnabledFlag,
	MetricsEnableInfluxDBFlag,
	MetricsInfluxDBEndpointFlag,
	MetricsInfluxDBDatabaseFlag,
	MetricsInfluxDBUsernameFlag,
	MetricsInfluxDBPasswordFlag,
	MetricsInfluxDBTagsFlag,
	MetricsEnableInfluxDBV2Flag,
	MetricsInfluxDBTokenFlag,
	MetricsInfluxDBBucketFlag,
	MetricsInfluxDBOrganizationFlag,
}

// SetupMetrics configures the metrics system and starts the configured
// exporters. Note the collection itself is switched on before flag parsing
// by the args peek in package metrics; this only wires the reporting side.
func SetupMetrics(ctx *cli.Context) {
	if !metrics.Enabled {
		return
	}
	var (
		enableExport   = ctx.Bool(MetricsEnableInfluxDBFlag.Name)
		enableExportV2 = ctx.Bool(MetricsEnableInfluxDBV2Flag.Name)
	)
	if enableExport && enableExportV2 {
		Fatalf("Flags %v can't be used at the same time", strings.Join([]string{MetricsEnableInfluxDBFlag.Name, MetricsEnableInfluxDBV2Flag.Name}, ", "))
	}
	var (
		endpoint = ctx.String(MetricsInfluxDBEndpointFlag.Name)
		database = ctx.String(MetricsInfluxDBDatabaseFlag.Name)
		username = ctx.String(MetricsInfluxDBUsernameFlag.Name)
		password = ctx.String(MetricsInfluxDBPasswordFlag.Name)

		token        = ctx.String(MetricsInfluxDBTokenFlag.Name)
		bucket       = ctx.String(MetricsInfluxDBBucketFlag.Name)
		organization = ctx.String(MetricsInfluxDBOrganizationFlag.Name)
		tagsMap      = SplitTagsFlag(ctx.String(MetricsInfluxDBTagsFlag.Name))
	)
	if enableExport {
		log.Info("Enabling metrics export to InfluxDB")
		go influxdb.InfluxDBWithTags(metrics.DefaultRegistry, 10*time.Second, endpoint, database, username, password, "taskhive.", tagsMap)
	} else if enableExportV2 {
		log.Info("Enabling metrics export to InfluxDB (v2)")
		go influxdb.InfluxDBV2WithTags(metrics.DefaultRegistry, 10*time.Second, endpoint, token, bucket, organization, "taskhive.", tagsMap)
	}
}
