package fakes

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate -o ./fake_process_table.go ../sampler ProcessTable
//counterfeiter:generate -o ./fake_notifier.go ../notifier Notifier
