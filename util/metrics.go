package util

// MetricsBucketsMicroSeconds covers 128µs to 262ms in doubling steps, for work done per message or event.
var MetricsBucketsMicroSeconds = []float64{
	128e-6, 256e-6, 512e-6, 1024e-6, 2048e-6, 4096e-6, 8192e-6, 16384e-6, 32768e-6, 65536e-6, 131072e-6, 262144e-6,
}

// MetricsBucketsCount covers 1 to 50000 items, the largest inventory message a peer may send.
var MetricsBucketsCount = []float64{
	1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 4096, 16384, 50000,
}
